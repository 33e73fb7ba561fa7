package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/konecto/actuator-agent/internal/log"
)

// PostgresStore persists conversations in PostgreSQL. Commits run inside a
// transaction that locks the conversation row, so concurrent commits on the
// same conversation serialize at the database and sequence numbers stay
// dense across replicas.
type PostgresStore struct {
	pool     *pgxpool.Pool
	maxTurns int
	logger   log.Logger
}

// NewPostgresStore creates a PostgresStore. maxTurns bounds the transcript
// window returned by GetOrCreate; zero or negative means unbounded.
func NewPostgresStore(pool *pgxpool.Pool, maxTurns int, logger log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresStore{pool: pool, maxTurns: maxTurns, logger: logger}
}

// GetOrCreate returns the conversation's retained window, inserting the
// conversation row when it does not exist yet.
func (s *PostgresStore) GetOrCreate(ctx context.Context, id uuid.UUID) (*Context, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}

	var filtersJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT last_filters FROM conversations WHERE id = $1`, id).Scan(&filtersJSON)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO conversations (id) VALUES ($1)
			 ON CONFLICT (id) DO NOTHING`, id); err != nil {
			return nil, fmt.Errorf("creating conversation %s: %w", id, err)
		}
		s.logger.Debug("created conversation", "conversation_id", id)
		return &Context{ID: id, Turns: []Turn{}, LastFilters: map[string]string{}}, nil
	case err != nil:
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}

	filters := map[string]string{}
	if len(filtersJSON) > 0 {
		if err := json.Unmarshal(filtersJSON, &filters); err != nil {
			s.logger.Warn("malformed filters JSON, resetting", "conversation_id", id, "error", err)
			filters = map[string]string{}
		}
	}

	turns, err := s.loadWindow(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Context{ID: id, Turns: turns, LastFilters: filters}, nil
}

// loadWindow fetches the newest maxTurns turns in ascending order.
func (s *PostgresStore) loadWindow(ctx context.Context, id uuid.UUID) ([]Turn, error) {
	query := `SELECT role, content, sequence_number, created_at
	          FROM conversation_turns WHERE conversation_id = $1
	          ORDER BY sequence_number DESC`
	args := []any{id}
	if s.maxTurns > 0 {
		query += ` LIMIT $2`
		args = append(args, s.maxTurns)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading turns for %s: %w", id, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Content, &t.Sequence, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}

	// Fetched newest-first for the LIMIT; reverse to chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

// Commit appends turns and replaces the carried filters in one transaction.
// The conversation row is locked for the duration so concurrent commits on
// the same id serialize and sequence numbers never collide.
func (s *PostgresStore) Commit(ctx context.Context, id uuid.UUID, turns []Turn, filters map[string]string) error {
	if err := validateTurns(turns); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking conversation %s: %w", id, err)
	}

	var maxSeq int32
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0)
		 FROM conversation_turns WHERE conversation_id = $1`, id).Scan(&maxSeq); err != nil {
		return fmt.Errorf("reading max sequence for %s: %w", id, err)
	}

	for i, t := range turns {
		seq := maxSeq + int32(i) + 1
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversation_turns (conversation_id, sequence_number, role, content)
			 VALUES ($1, $2, $3, $4)`, id, seq, t.Role, t.Content); err != nil {
			return fmt.Errorf("inserting turn %d: %w", i, err)
		}
	}

	filtersJSON, err := json.Marshal(cloneFilters(filters))
	if err != nil {
		return fmt.Errorf("marshaling filters: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET last_filters = $2, updated_at = now()
		 WHERE id = $1`, id, filtersJSON); err != nil {
		return fmt.Errorf("updating conversation %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("committed turns", "conversation_id", id, "count", len(turns))
	return nil
}

var _ Store = (*PostgresStore)(nil)
