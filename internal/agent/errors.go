package agent

import "errors"

var (
	// ErrInvalidInput indicates a request the agent refuses outright:
	// blank message or malformed conversation id.
	ErrInvalidInput = errors.New("invalid input")

	// ErrToolUnavailable indicates a backing store or embedding provider
	// was unreachable or timed out. The turn is not persisted.
	ErrToolUnavailable = errors.New("tool unavailable")

	// ErrCompositionTimeout indicates answer composition exceeded its
	// deadline. The turn is not persisted.
	ErrCompositionTimeout = errors.New("composition timeout")
)
