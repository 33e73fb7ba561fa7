// Package trace records per-turn observability events. Emission is
// decoupled from the response path: the buffered sink drops events under
// backpressure instead of blocking a turn.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/konecto/actuator-agent/internal/log"
)

// Event is one observation from a turn: the route taken, the tool invoked,
// and how long each stage took.
type Event struct {
	ConversationID uuid.UUID
	Route          string
	Tool           string
	MatchedCount   int
	ToolDuration   time.Duration
	TotalDuration  time.Duration
	Err            string
	At             time.Time
}

// Sink consumes turn events. Emit must never block the caller.
type Sink interface {
	Emit(ev Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger log.Logger
}

func (s LogSink) Emit(ev Event) {
	s.Logger.Info("turn",
		"conversation_id", ev.ConversationID,
		"route", ev.Route,
		"tool", ev.Tool,
		"matched", ev.MatchedCount,
		"tool_duration", ev.ToolDuration,
		"total_duration", ev.TotalDuration,
		"error", ev.Err,
	)
}

// BufferedSink fans events into a bounded channel consumed by a single
// goroutine. When the buffer is full the event is dropped and counted;
// the turn is never delayed.
type BufferedSink struct {
	ch      chan Event
	next    Sink
	logger  log.Logger
	wg      sync.WaitGroup
	mu      sync.Mutex
	dropped uint64
	closed  bool
}

// NewBufferedSink starts the consumer goroutine. next receives every event
// that fits in the buffer. Call Close to drain and stop.
func NewBufferedSink(size int, next Sink, logger log.Logger) *BufferedSink {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = log.NewNop()
	}
	s := &BufferedSink{
		ch:     make(chan Event, size),
		next:   next,
		logger: logger,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ev := range s.ch {
			s.next.Emit(ev)
		}
	}()
	return s
}

// Emit enqueues the event, dropping it when the buffer is full.
// The lock spans the send so Emit never races a concurrent Close.
func (s *BufferedSink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped++
	}
}

// Dropped reports how many events were discarded under backpressure.
func (s *BufferedSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops accepting events, drains the buffer, and waits for the
// consumer to finish or ctx to expire.
func (s *BufferedSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.ch)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		if d := s.Dropped(); d > 0 {
			s.logger.Warn("trace events dropped", "count", d)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
