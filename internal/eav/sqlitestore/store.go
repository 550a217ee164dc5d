// Package sqlitestore implements the EAV+graph store on SQLite with optional
// FTS5 full-text search over blocks.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/kiln/internal/eav"
	"github.com/starford/kiln/internal/query/render"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite backend. Writers are serialized by a process-level
// mutex; readers run concurrently under WAL.
type Store struct {
	conn    *sql.DB
	q       queryer
	writeMu *sync.Mutex
	inTx    bool
	logger  *slog.Logger
}

var _ eav.Store = (*Store)(nil)

// Option configures Open.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, classify("sqlitestore: ping", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, classify("sqlitestore: apply core schema", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, classify("sqlitestore: apply fts schema", err)
	}

	s := &Store{conn: conn, q: conn, writeMu: &sync.Mutex{}, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.inTx {
		return fmt.Errorf("sqlitestore: close inside transaction")
	}
	return s.conn.Close()
}

func (s *Store) Backend() string { return render.BackendSQLite }

// Update runs fn in one transaction. Nested calls join the outer transaction.
func (s *Store) Update(ctx context.Context, fn func(tx eav.Store) error) error {
	return s.atomic(ctx, func(tx *Store) error { return fn(tx) })
}

// atomic runs fn on a transaction-bound store, reusing the current one when
// already inside Update.
func (s *Store) atomic(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify("sqlitestore: begin tx", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // best-effort on failure path

	tx := &Store{conn: s.conn, q: sqlTx, writeMu: s.writeMu, inTx: true, logger: s.logger}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return classify("sqlitestore: commit", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classify("sqlitestore: commit", err)
	}
	return nil
}
