// Package sqlite implements the Larder storage layer: the schema
// definition, the migration engine, and the recipe and template
// repositories, all on a single on-device SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/ovenbird/larder/pkg/types"
)

// Store owns the single long-lived connection handle to the database file.
// The handle is opened lazily on first use and cached until Close. Every
// repository routes through one shared Store; SQLite permits one writer at
// a time, so the pool is capped at a single connection and one logical
// transaction completes before the next begins.
type Store struct {
	mu     sync.Mutex
	path   string
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the migration engine and reset flows.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a Store for the database file at path. The file is not
// touched until the first operation.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// conn returns the cached handle, opening it on first use.
func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	dsn := s.path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Single writer: serializes logical operations on the shared handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s.db = db
	return s.db, nil
}

// Open eagerly opens the cached handle. Calling it is optional; every
// operation opens lazily.
func (s *Store) Open(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

// Close disposes the cached handle and clears the cache. Idempotent. The
// next operation reopens the file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// WithTx begins a transaction, invokes fn, commits on a nil return and
// rolls back when fn returns an error. Nested calls are not supported:
// repositories compose at a single top-level WithTx per logical operation.
// Once begun, the transaction always runs to completion.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classifyError(err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classifyError(err)
	}
	if err := tx.Commit(); err != nil {
		return classifyError(err)
	}
	return nil
}

// CountRows returns the row count of one canonical table, soft-deleted rows
// included. Only names from TableNames are accepted.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	valid := false
	for _, name := range tableNames {
		if name == table {
			valid = true
			break
		}
	}
	if !valid {
		return 0, fmt.Errorf("%w: unknown table %q", types.ErrStorage, table)
	}

	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, classifyError(fmt.Errorf("counting %s: %w", table, err))
	}
	return n, nil
}

// Reset drops every table and recreates the current schema. This is the
// one operation that physically removes rows; it backs an explicit,
// irreversible user action and is never part of normal startup.
func (s *Store) Reset(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	for _, name := range tableNames {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
			return classifyError(fmt.Errorf("dropping %s: %w", name, err))
		}
	}
	return s.EnsureSchema(ctx)
}

// classifyError translates engine-level failures into the typed categories
// of pkg/types before they surface to repository callers. Errors already
// carrying a sentinel pass through unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		types.ErrNotFound,
		types.ErrUniqueConstraint,
		types.ErrForeignKey,
		types.ErrRequiredField,
		types.ErrInvalidID,
		types.ErrInvalidName,
		types.ErrStorage,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", types.ErrUniqueConstraint, msg)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %s", types.ErrForeignKey, msg)
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return fmt.Errorf("%w: %s", types.ErrRequiredField, msg)
	default:
		return fmt.Errorf("%w: %s", types.ErrStorage, msg)
	}
}
