// Package conversation persists multi-turn dialogue state: the ordered
// transcript plus the filters carried from earlier turns.
//
// Two Store implementations exist: MemoryStore for single-process use and
// tests, PostgresStore for durable multi-replica deployments. Both append
// turns atomically so a failed request never leaves a half-written turn.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Turn roles. Tool invocations are not persisted as turns; only the user
// message and the composed assistant reply enter the transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrNotFound indicates the conversation id does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidRole indicates a turn carries a role outside user/assistant.
	ErrInvalidRole = errors.New("invalid turn role")
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sequence  int32     `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

// Context is the state a request handler sees for one conversation: the
// retained transcript window and the filters remembered from prior turns.
type Context struct {
	ID          uuid.UUID
	Turns       []Turn
	LastFilters map[string]string
}

// Store persists conversation state.
//
// GetOrCreate with uuid.Nil allocates a fresh conversation. Commit appends
// the given turns and replaces the carried filters in one atomic step;
// concurrent Commits on the same conversation serialize, and sequence
// numbers stay dense and monotonic.
type Store interface {
	GetOrCreate(ctx context.Context, id uuid.UUID) (*Context, error)
	Commit(ctx context.Context, id uuid.UUID, turns []Turn, filters map[string]string) error
}

func validateTurns(turns []Turn) error {
	for _, t := range turns {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return ErrInvalidRole
		}
	}
	return nil
}

// windowTail returns the last max turns, or all of them when max <= 0.
func windowTail(turns []Turn, max int) []Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}

func cloneFilters(filters map[string]string) map[string]string {
	if filters == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(filters))
	for k, v := range filters {
		out[k] = v
	}
	return out
}
