package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/konecto/actuator-agent/internal/log"
)

// MemoryStore keeps conversation state in process memory. State is lost on
// restart; production deployments use PostgresStore.
//
// MemoryStore is safe for concurrent use. Commits on the same conversation
// serialize on a per-conversation mutex so sequence numbers never collide.
type MemoryStore struct {
	mu       sync.RWMutex
	convs    map[uuid.UUID]*memoryConversation
	maxTurns int
	logger   log.Logger
}

type memoryConversation struct {
	mu      sync.Mutex
	turns   []Turn
	filters map[string]string
}

// NewMemoryStore creates a MemoryStore. maxTurns bounds the transcript
// window returned by GetOrCreate; zero or negative means unbounded.
func NewMemoryStore(maxTurns int, logger log.Logger) *MemoryStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &MemoryStore{
		convs:    make(map[uuid.UUID]*memoryConversation),
		maxTurns: maxTurns,
		logger:   logger,
	}
}

// GetOrCreate returns the conversation's retained window. A uuid.Nil id
// allocates a fresh conversation; an unknown non-nil id is created under
// that id, matching first-turn semantics for client-supplied identifiers.
func (s *MemoryStore) GetOrCreate(ctx context.Context, id uuid.UUID) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if id == uuid.Nil {
		id = uuid.New()
	}

	s.mu.Lock()
	conv, ok := s.convs[id]
	if !ok {
		conv = &memoryConversation{filters: map[string]string{}}
		s.convs[id] = conv
		s.logger.Debug("created conversation", "conversation_id", id)
	}
	s.mu.Unlock()

	conv.mu.Lock()
	defer conv.mu.Unlock()
	window := windowTail(conv.turns, s.maxTurns)
	turns := make([]Turn, len(window))
	copy(turns, window)
	return &Context{ID: id, Turns: turns, LastFilters: cloneFilters(conv.filters)}, nil
}

// Commit appends turns and replaces the carried filters atomically.
func (s *MemoryStore) Commit(ctx context.Context, id uuid.UUID, turns []Turn, filters map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateTurns(turns); err != nil {
		return err
	}

	s.mu.RLock()
	conv, ok := s.convs[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()

	var maxSeq int32
	if n := len(conv.turns); n > 0 {
		maxSeq = conv.turns[n-1].Sequence
	}
	now := time.Now()
	for i, t := range turns {
		t.Sequence = maxSeq + int32(i) + 1
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		conv.turns = append(conv.turns, t)
	}
	conv.filters = cloneFilters(filters)

	s.logger.Debug("committed turns", "conversation_id", id, "count", len(turns))
	return nil
}

var _ Store = (*MemoryStore)(nil)
