// Package tools implements the agent's retrieval tool layer. The tool set
// is closed: exactly two tools exist, dispatched by typed methods rather
// than a runtime registry, so adding a tool is a compile-time change.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/konecto/actuator-agent/internal/catalog"
	"github.com/konecto/actuator-agent/internal/catalog/exact"
	"github.com/konecto/actuator-agent/internal/catalog/semantic"
	"github.com/konecto/actuator-agent/internal/log"
)

// Tool names as they appear in invocations and traces.
const (
	ToolPartNumberSearch = "search_by_part_number"
	ToolSemanticSearch   = "semantic_search"
)

// ErrInvalidArguments indicates a tool was invoked with arguments that
// fail validation (blank query, out-of-range k after clamping).
var ErrInvalidArguments = errors.New("invalid tool arguments")

// Invocation is the record of one tool execution: which tool ran, with
// what arguments, and what it matched. An empty Records slice is valid
// data ("not found"), not an error.
type Invocation struct {
	Tool         string                 `json:"tool"`
	Arguments    map[string]any         `json:"arguments"`
	Records      []catalog.ScoredRecord `json:"records"`
	MatchedCount int                    `json:"matched_count"`
}

// Kit bundles the two retrieval tools over their backing stores.
// Both stores are read-only in the request path, so a Kit is safe for
// concurrent use across turns.
type Kit struct {
	exact       *exact.Store
	semantic    *semantic.Store
	defaultTopK int
	timeout     time.Duration
	logger      log.Logger
}

// NewKit creates a Kit. defaultTopK is used when SemanticSearch is called
// with k <= 0; timeout bounds each tool execution.
func NewKit(exactStore *exact.Store, semanticStore *semantic.Store, defaultTopK int, timeout time.Duration, logger log.Logger) *Kit {
	if logger == nil {
		logger = log.NewNop()
	}
	if defaultTopK <= 0 {
		defaultTopK = 3
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Kit{
		exact:       exactStore,
		semantic:    semanticStore,
		defaultTopK: defaultTopK,
		timeout:     timeout,
		logger:      logger,
	}
}

// SearchByPartNumber looks up a part number. The query is normalized
// first; an exact match wins, otherwise a substring fallback returns all
// context-type variants containing the normalized query.
func (k *Kit) SearchByPartNumber(ctx context.Context, query string) (*Invocation, error) {
	normalized := catalog.Normalize(query)
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty part number query", ErrInvalidArguments)
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	records, err := k.exact.Lookup(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("part number lookup: %w", err)
	}
	if len(records) == 0 {
		records, err = k.exact.LookupByBase(ctx, normalized)
		if err != nil {
			return nil, fmt.Errorf("part number fallback lookup: %w", err)
		}
	}

	scored := make([]catalog.ScoredRecord, len(records))
	for i, rec := range records {
		scored[i] = catalog.ScoredRecord{Record: rec, Similarity: 1}
	}

	k.logger.Debug("tool executed", "tool", ToolPartNumberSearch,
		"query", normalized, "matched", len(scored))
	return &Invocation{
		Tool:         ToolPartNumberSearch,
		Arguments:    map[string]any{"query": normalized},
		Records:      scored,
		MatchedCount: len(scored),
	}, nil
}

// SemanticSearch retrieves the k nearest records for a requirement query,
// optionally restricted by metadata filters. k <= 0 takes the configured
// default; values above the maximum are clamped, not rejected.
func (k *Kit) SemanticSearch(ctx context.Context, query string, topK int, filters map[string]string) (*Invocation, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty semantic query", ErrInvalidArguments)
	}
	if topK <= 0 {
		topK = k.defaultTopK
	}

	opts := []semantic.SearchOption{
		semantic.WithTopK(topK),
		semantic.WithTimeout(k.timeout),
	}
	args := map[string]any{"query": query, "k": topK}
	if len(filters) > 0 {
		for key, value := range filters {
			opts = append(opts, semantic.WithFilter(key, value))
		}
		args["filters"] = filters
	}

	records, err := k.semantic.Query(ctx, query, opts...)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	k.logger.Debug("tool executed", "tool", ToolSemanticSearch,
		"k", topK, "matched", len(records))
	return &Invocation{
		Tool:         ToolSemanticSearch,
		Arguments:    args,
		Records:      records,
		MatchedCount: len(records),
	}, nil
}
