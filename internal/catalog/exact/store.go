// Package exact implements the exact-match store: structured lookup over
// actuator records keyed by normalized part number, backed by SQLite.
package exact

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/konecto/actuator-agent/internal/catalog"
	"github.com/konecto/actuator-agent/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// maxLookupResults caps the number of rows a single lookup returns.
// A base part number has a handful of context-type variants; anything
// beyond this is a degenerate prefix match.
const maxLookupResults = 10

// Open opens the SQLite catalog database, creating the parent directory
// when needed. Foreign keys are enabled on the connection.
func Open(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return db, nil
}

// Migrate applies all pending catalog schema migrations.
// Migrations are embedded at compile time and executed in order.
func Migrate(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	// Don't Close(): the sqlite driver does not take over the connection,
	// and closing here would tear down the caller's *sql.DB state.

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}

	return nil
}

// Store performs exact and base-prefix lookups over the actuator catalog.
// Lookups are read-only and safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// New creates a Store over an open catalog database.
func New(db *sql.DB, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Lookup returns all records whose part number equals normalizedKey.
// The key must already be normalized (catalog.Normalize). An empty result
// means not found; it is not an error.
func (s *Store) Lookup(ctx context.Context, normalizedKey string) ([]catalog.Record, error) {
	const q = `
		SELECT part_number, context_type, spec_json
		FROM actuators
		WHERE part_number = ?
		ORDER BY rowid
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, normalizedKey, maxLookupResults)
	if err != nil {
		return nil, fmt.Errorf("exact lookup %q: %w", normalizedKey, err)
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

// LookupByBase returns every context-type variant whose part number
// contains baseKey. This is the fallback when an exact lookup misses:
// a base part number may have several context-type variants, and all are
// returned together so the caller can disambiguate.
func (s *Store) LookupByBase(ctx context.Context, baseKey string) ([]catalog.Record, error) {
	const q = `
		SELECT part_number, context_type, spec_json
		FROM actuators
		WHERE part_number LIKE ?
		ORDER BY rowid
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, "%"+baseKey+"%", maxLookupResults)
	if err != nil {
		return nil, fmt.Errorf("base lookup %q: %w", baseKey, err)
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

// Insert adds a record to the catalog. Ingestion pipelines live outside
// this repository; Insert exists for seeding and tests.
func (s *Store) Insert(ctx context.Context, rec catalog.Record) error {
	specJSON, err := json.Marshal(rec.Specs)
	if err != nil {
		return fmt.Errorf("marshaling specs for %q: %w", rec.PartNumber, err)
	}

	const q = `
		INSERT INTO actuators (part_number, context_type, spec_json)
		VALUES (?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, q, catalog.Normalize(rec.PartNumber), rec.ContextType, string(specJSON)); err != nil {
		return fmt.Errorf("inserting %q: %w", rec.PartNumber, err)
	}
	return nil
}

// Ping verifies the catalog database is reachable. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// scanRecords reads actuator rows into catalog records. Rows with
// malformed spec JSON are skipped with a warning rather than failing the
// whole lookup.
func (s *Store) scanRecords(rows *sql.Rows) ([]catalog.Record, error) {
	var records []catalog.Record
	for rows.Next() {
		var (
			partNumber  string
			contextType string
			specJSON    string
		)
		if err := rows.Scan(&partNumber, &contextType, &specJSON); err != nil {
			return nil, fmt.Errorf("scanning actuator row: %w", err)
		}

		var specs map[string]any
		if err := json.Unmarshal([]byte(specJSON), &specs); err != nil {
			s.logger.Warn("skipping actuator with malformed spec JSON",
				"part_number", partNumber, "error", err)
			continue
		}

		records = append(records, catalog.Record{
			PartNumber:  partNumber,
			ContextType: contextType,
			Specs:       specs,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actuator rows: %w", err)
	}
	return records, nil
}
