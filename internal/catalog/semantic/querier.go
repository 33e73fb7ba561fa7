package semantic

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxQuerier implements Querier against a pgx connection pool.
type PgxQuerier struct {
	pool *pgxpool.Pool
}

// NewPgxQuerier wraps a pool. The caller owns the pool's lifecycle.
func NewPgxQuerier(pool *pgxpool.Pool) *PgxQuerier {
	return &PgxQuerier{pool: pool}
}

// SearchChunks returns the nearest chunks by cosine distance, most similar
// first, chunk id breaking ties. An empty FilterMetadata searches all chunks.
func (q *PgxQuerier) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]ChunkRow, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT id, part_number, context_type, content, spec,
		        1 - (embedding <=> $1) AS similarity
		 FROM actuator_chunks
		 WHERE ($2::jsonb IS NULL OR metadata @> $2)
		 ORDER BY embedding <=> $1, id
		 LIMIT $3`,
		arg.QueryEmbedding, arg.FilterMetadata, arg.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var results []ChunkRow
	for rows.Next() {
		var r ChunkRow
		if err := rows.Scan(&r.ID, &r.PartNumber, &r.ContextType, &r.Content,
			&r.Spec, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}
	return results, nil
}

// CountChunks reports the total number of indexed chunks.
func (q *PgxQuerier) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM actuator_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// InsertChunk adds one chunk to the index.
func (q *PgxQuerier) InsertChunk(ctx context.Context, arg InsertChunkParams) error {
	_, err := q.pool.Exec(ctx,
		`INSERT INTO actuator_chunks
		   (part_number, context_type, content, spec, metadata, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		arg.PartNumber, arg.ContextType, arg.Content, arg.Spec, arg.Metadata,
		arg.Embedding)
	if err != nil {
		return fmt.Errorf("inserting chunk: %w", err)
	}
	return nil
}
