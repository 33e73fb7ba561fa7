// Package agent routes natural-language catalog questions: it classifies
// each message, invokes one of the two retrieval tools (or asks for
// clarification), composes a reply, and persists the turn atomically.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/konecto/actuator-agent/internal/catalog"
	"github.com/konecto/actuator-agent/internal/catalog/semantic"
	"github.com/konecto/actuator-agent/internal/conversation"
	"github.com/konecto/actuator-agent/internal/log"
	"github.com/konecto/actuator-agent/internal/tools"
	"github.com/konecto/actuator-agent/internal/trace"
)

// Config tunes a single Agent instance.
type Config struct {
	// DefaultTopK is the semantic result count when the message does not
	// imply one.
	DefaultTopK int
	// MinResults is the count below which the composed answer flags the
	// match set as insufficient.
	MinResults int
	// ClarifyMinSignals is the specificity threshold below which a message
	// with no carried context routes to Clarify.
	ClarifyMinSignals int
	// ComposeTimeout bounds one composition. The tool kit bounds its own
	// invocations. Timeouts fail the turn, they never hang it.
	ComposeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 3
	}
	if c.MinResults <= 0 {
		c.MinResults = 3
	}
	if c.ClarifyMinSignals <= 0 {
		c.ClarifyMinSignals = 2
	}
	if c.ComposeTimeout <= 0 {
		c.ComposeTimeout = 30 * time.Second
	}
	return c
}

// Result is the outcome of one successfully handled turn. Clarify is a
// success: the reply asks the user for detail instead of answering.
type Result struct {
	ConversationID uuid.UUID
	Response       string
	Route          RouteKind
	Invocation     *tools.Invocation
}

// Agent executes one turn per HandleMessage call. It holds no per-turn
// state, so a single Agent serves concurrent conversations; turns on the
// same conversation id are serialized end to end.
type Agent struct {
	kit      *tools.Kit
	store    conversation.Store
	composer Composer
	sink     trace.Sink
	cfg      Config
	logger   log.Logger
	locks    *turnLocks
}

// New creates an Agent. A nil sink disables tracing.
func New(kit *tools.Kit, store conversation.Store, composer Composer, sink trace.Sink, cfg Config, logger log.Logger) *Agent {
	if logger == nil {
		logger = log.NewNop()
	}
	if sink == nil {
		sink = trace.NopSink{}
	}
	return &Agent{
		kit:      kit,
		store:    store,
		composer: composer,
		sink:     sink,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		locks:    newTurnLocks(),
	}
}

// turnLocks serializes turns by conversation id. Entries are refcounted
// and removed once the last holder releases, so idle conversations leave
// nothing behind.
type turnLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*turnLock
}

type turnLock struct {
	mu   sync.Mutex
	refs int
}

func newTurnLocks() *turnLocks {
	return &turnLocks{locks: map[uuid.UUID]*turnLock{}}
}

func (t *turnLocks) acquire(id uuid.UUID) func() {
	t.mu.Lock()
	l := t.locks[id]
	if l == nil {
		l = &turnLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}

// HandleMessage runs one conversational turn: validate, classify, invoke,
// compose, persist. State is committed only after the whole sequence
// succeeds, so a failed or canceled turn leaves the conversation untouched.
// The conversation's turn lock is held from load through commit, so
// concurrent turns on one id never interleave reads with writes.
func (a *Agent) HandleMessage(ctx context.Context, conversationID uuid.UUID, message string) (*Result, error) {
	start := time.Now()

	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidInput)
	}

	if conversationID != uuid.Nil {
		release := a.locks.acquire(conversationID)
		defer release()
	}

	conv, err := a.store.GetOrCreate(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if conversationID == uuid.Nil {
		// Fresh conversation: the id exists only now, so the lock could
		// not be taken earlier. No competing turn can know the id yet.
		release := a.locks.acquire(conv.ID)
		defer release()
	}

	route := Classify(message, conv.LastFilters, ClassifierConfig{
		ClarifyMinSignals: a.cfg.ClarifyMinSignals,
	})

	var (
		result   *Result
		toolTime time.Duration
	)
	switch route.Kind {
	case RouteClarify:
		result = &Result{
			ConversationID: conv.ID,
			Response:       clarifyVague(),
			Route:          RouteClarify,
		}
	default:
		result, toolTime, err = a.invokeAndCompose(ctx, conv, route, message)
		if err != nil {
			a.emit(conv.ID, route.Kind, nil, toolTime, time.Since(start), err)
			return nil, err
		}
	}

	newFilters := a.filtersAfterTurn(conv.LastFilters, route, result)
	turns := []conversation.Turn{
		{Role: conversation.RoleUser, Content: message},
		{Role: conversation.RoleAssistant, Content: result.Response},
	}
	if err := a.store.Commit(ctx, conv.ID, turns, newFilters); err != nil {
		return nil, fmt.Errorf("persisting turn: %w", err)
	}

	a.emit(conv.ID, result.Route, result.Invocation, toolTime, time.Since(start), nil)
	return result, nil
}

// invokeAndCompose runs the routed tool and composes the reply. An
// ambiguous part-number match short-circuits into a clarify reply.
func (a *Agent) invokeAndCompose(ctx context.Context, conv *conversation.Context, route Route, message string) (*Result, time.Duration, error) {
	toolStart := time.Now()
	inv, err := a.invoke(ctx, route)
	toolTime := time.Since(toolStart)
	if err != nil {
		return nil, toolTime, err
	}

	if route.Kind == RoutePartNumber {
		if resolved, ambiguous := resolveVariants(inv.Records, route.Attributes); ambiguous {
			return &Result{
				ConversationID: conv.ID,
				Response:       clarifyAmbiguous(inv.Records),
				Route:          RouteClarify,
				Invocation:     inv,
			}, toolTime, nil
		} else if resolved != nil {
			inv.Records = resolved
			inv.MatchedCount = len(resolved)
		}
	}

	composeCtx, cancel := context.WithTimeout(ctx, a.cfg.ComposeTimeout)
	defer cancel()
	response, err := a.composer.Compose(composeCtx, ComposeInput{
		Message:    message,
		History:    conv.Turns,
		Invocation: inv,
		MinResults: a.cfg.MinResults,
	})
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			// Caller gone; not a tool failure.
			return nil, toolTime, fmt.Errorf("composing answer: %w", err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, toolTime, fmt.Errorf("%w: %w", ErrCompositionTimeout, err)
		default:
			return nil, toolTime, fmt.Errorf("%w: composition failed: %w", ErrToolUnavailable, err)
		}
	}

	return &Result{
		ConversationID: conv.ID,
		Response:       response,
		Route:          route.Kind,
		Invocation:     inv,
	}, toolTime, nil
}

// invoke dispatches the closed tool set. Store and index failures fold
// into ErrToolUnavailable; invalid arguments into ErrInvalidInput.
func (a *Agent) invoke(ctx context.Context, route Route) (*tools.Invocation, error) {
	var (
		inv *tools.Invocation
		err error
	)
	switch route.Kind {
	case RoutePartNumber:
		inv, err = a.kit.SearchByPartNumber(ctx, route.Query)
	case RouteSemantic:
		inv, err = a.kit.SemanticSearch(ctx, route.Query, a.cfg.DefaultTopK, metadataFilter(route.Attributes))
	default:
		return nil, fmt.Errorf("unroutable kind %q", route.Kind)
	}
	if err != nil {
		switch {
		case errors.Is(err, tools.ErrInvalidArguments):
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		case errors.Is(err, semantic.ErrEmptyIndex):
			return nil, fmt.Errorf("%w: semantic index not populated", ErrToolUnavailable)
		case errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("running tool: %w", err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrToolUnavailable, err)
		}
	}
	return inv, nil
}

// resolveVariants inspects a multi-variant part-number result. When the
// message's attributes single out one context type, the match narrows to
// it; otherwise the set is ambiguous and needs clarification.
func resolveVariants(records []catalog.ScoredRecord, attrs map[string]string) ([]catalog.ScoredRecord, bool) {
	if len(records) <= 1 {
		return nil, false
	}
	contextTypes := map[string]struct{}{}
	for _, r := range records {
		contextTypes[r.ContextType] = struct{}{}
	}
	if len(contextTypes) <= 1 {
		return nil, false
	}

	if len(attrs) > 0 {
		var matched []catalog.ScoredRecord
		for _, r := range records {
			if contextTypeConsistent(r.ContextType, attrs) {
				matched = append(matched, r)
			}
		}
		if len(matched) >= 1 && len(matched) < len(records) {
			return matched, false
		}
	}
	return nil, true
}

// metadataFilter maps a consistent carried context type to a semantic
// index filter. Attribute-only context (voltage, phase) enriches the query
// text instead, so no filter is produced for it.
func metadataFilter(attrs map[string]string) map[string]string {
	if ct, ok := attrs[attrContextType]; ok {
		return map[string]string{attrContextType: ct}
	}
	return nil
}

// filtersAfterTurn computes the filters to persist. A vague clarify keeps
// the carried filters untouched; an ambiguous part-number clarify also
// records the base so the next turn's attributes resolve against it. A
// successful tool turn persists the merged attributes plus the context
// type the results resolved to.
func (a *Agent) filtersAfterTurn(carried map[string]string, route Route, result *Result) map[string]string {
	if result.Route == RouteClarify {
		if result.Invocation == nil {
			return carried
		}
		filters := make(map[string]string, len(carried)+1)
		for k, v := range carried {
			filters[k] = v
		}
		filters[attrPendingPartNumber] = route.Query
		return filters
	}

	filters := make(map[string]string, len(route.Attributes)+1)
	for k, v := range route.Attributes {
		filters[k] = v
	}
	if inv := result.Invocation; inv != nil && len(inv.Records) > 0 {
		top := inv.Records[0]
		distinct := map[string]struct{}{}
		for _, r := range inv.Records {
			distinct[r.ContextType] = struct{}{}
		}
		if len(distinct) == 1 {
			filters[attrContextType] = top.ContextType
		}
	}
	return filters
}

func (a *Agent) emit(id uuid.UUID, route RouteKind, inv *tools.Invocation, toolTime, total time.Duration, err error) {
	ev := trace.Event{
		ConversationID: id,
		Route:          string(route),
		ToolDuration:   toolTime,
		TotalDuration:  total,
		At:             time.Now(),
	}
	if inv != nil {
		ev.Tool = inv.Tool
		ev.MatchedCount = inv.MatchedCount
	}
	if err != nil {
		ev.Err = err.Error()
	}
	a.sink.Emit(ev)
}
