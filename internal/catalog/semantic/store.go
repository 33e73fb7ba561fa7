// Package semantic implements the semantic index: vector search over
// actuator-record text chunks backed by PostgreSQL + pgvector.
//
// Query embedding goes through a genkit ai.Embedder so providers can be
// swapped in configuration and stubbed in tests. Database access goes
// through the consumer-defined Querier interface for the same reason.
package semantic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"

	"github.com/konecto/actuator-agent/internal/catalog"
	"github.com/konecto/actuator-agent/internal/log"
)

// VectorDimension is the embedding width of the actuator_chunks schema.
// Embedders must be configured to produce vectors of this size.
const VectorDimension = 768

// ErrEmptyIndex indicates the semantic index holds no chunks at all.
// A populated index that merely matches nothing returns an empty slice.
var ErrEmptyIndex = errors.New("semantic index is empty")

// SearchChunksParams are the inputs for a nearest-neighbor chunk search.
// FilterMetadata is a JSONB containment filter; nil searches everything.
type SearchChunksParams struct {
	QueryEmbedding pgvector.Vector
	FilterMetadata []byte
	ResultLimit    int32
}

// ChunkRow is one indexed chunk returned by a search, with its similarity
// to the query (higher is more similar).
type ChunkRow struct {
	ID          int64
	PartNumber  string
	ContextType string
	Content     string
	Spec        []byte
	Similarity  float64
}

// InsertChunkParams are the inputs for indexing one chunk.
type InsertChunkParams struct {
	PartNumber  string
	ContextType string
	Content     string
	Spec        []byte
	Metadata    []byte
	Embedding   pgvector.Vector
}

// Querier defines the database operations the Store depends on.
// Interfaces are defined by the consumer: production uses the pgx-backed
// implementation in querier.go, tests substitute a mock.
type Querier interface {
	SearchChunks(ctx context.Context, arg SearchChunksParams) ([]ChunkRow, error)
	CountChunks(ctx context.Context) (int64, error)
	InsertChunk(ctx context.Context, arg InsertChunkParams) error
}

// Store performs semantic search over actuator chunks.
// It is read-only in the request path and safe for concurrent use.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a Store.
func New(querier Querier, embedder ai.Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{queries: querier, embedder: embedder, logger: logger}
}

// Query embeds text and returns the nearest actuator records, deduplicated
// to one row per underlying record (best similarity kept), ordered by
// descending similarity with catalog insertion order as the tie-break.
//
// Zero matches against a populated index return an empty slice, never an
// error. An unpopulated index returns ErrEmptyIndex.
//
// Example:
//
//	results, err := store.Query(ctx, "high torque actuator",
//	    semantic.WithTopK(5),
//	    semantic.WithFilter("context_type", "110V Single Phase Power"))
func (s *Store) Query(ctx context.Context, text string, opts ...SearchOption) ([]catalog.ScoredRecord, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	embedding, err := s.embedText(queryCtx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, err
	}

	var filterJSON []byte
	if len(cfg.filter) > 0 {
		filterJSON, err = json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	// Over-fetch chunks: several chunks may belong to the same record and
	// collapse in dedup, so ask for more rows than records requested.
	rows, err := s.queries.SearchChunks(queryCtx, SearchChunksParams{
		QueryEmbedding: embedding,
		FilterMetadata: filterJSON,
		ResultLimit:    cfg.topK * chunkOverfetchFactor,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	if len(rows) == 0 {
		count, countErr := s.queries.CountChunks(queryCtx)
		if countErr != nil {
			return nil, fmt.Errorf("checking index population: %w", countErr)
		}
		if count == 0 {
			return nil, ErrEmptyIndex
		}
		return []catalog.ScoredRecord{}, nil
	}

	results := dedupeRows(rows, int(cfg.topK), s.logger)
	s.logger.Debug("semantic search", "query_length", len(text),
		"chunks", len(rows), "records", len(results))
	return results, nil
}

// chunkOverfetchFactor is how many chunks are fetched per requested record
// to survive per-record deduplication.
const chunkOverfetchFactor = 4

// Index adds one chunk to the semantic index, embedding its content.
// Bulk ingestion pipelines live outside this repository; Index exists for
// seeding and tests.
func (s *Store) Index(ctx context.Context, rec catalog.Record, content string) error {
	embedding, err := s.embedText(ctx, content)
	if err != nil {
		return err
	}

	specJSON, err := json.Marshal(rec.Specs)
	if err != nil {
		return fmt.Errorf("marshaling specs for %q: %w", rec.PartNumber, err)
	}

	metadata, err := json.Marshal(map[string]string{
		"part_number":  rec.PartNumber,
		"context_type": rec.ContextType,
	})
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", rec.PartNumber, err)
	}

	if err := s.queries.InsertChunk(ctx, InsertChunkParams{
		PartNumber:  rec.PartNumber,
		ContextType: rec.ContextType,
		Content:     content,
		Spec:        specJSON,
		Metadata:    metadata,
		Embedding:   embedding,
	}); err != nil {
		return fmt.Errorf("indexing chunk for %q: %w", rec.PartNumber, err)
	}
	return nil
}

// embedText runs the configured embedder over one piece of text.
func (s *Store) embedText(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("generating embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// dedupeRows collapses chunk rows to one scored record per underlying
// actuator record, keeping the best similarity. Input rows arrive ordered
// by similarity descending, chunk id ascending, so keeping first
// occurrences preserves the required ordering.
func dedupeRows(rows []ChunkRow, limit int, logger log.Logger) []catalog.ScoredRecord {
	seen := make(map[string]struct{}, len(rows))
	results := make([]catalog.ScoredRecord, 0, limit)

	for _, row := range rows {
		key := row.PartNumber + "\x00" + row.ContextType
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		var specs map[string]any
		if len(row.Spec) > 0 {
			if err := json.Unmarshal(row.Spec, &specs); err != nil {
				logger.Warn("malformed spec JSON in chunk", "chunk_id", row.ID, "error", err)
				specs = map[string]any{}
			}
		}

		results = append(results, catalog.ScoredRecord{
			Record: catalog.Record{
				PartNumber:  row.PartNumber,
				ContextType: row.ContextType,
				Specs:       specs,
			},
			Similarity: row.Similarity,
		})
		if len(results) == limit {
			break
		}
	}
	return results
}
