// Package store is the sole owner of SQL in this repo. Every query named
// in the system's component design gets one method here, the teacher's
// tutorials inline the occasional db.Exec directly in main — this system
// has enough call sites into the database that the original Rust service
// (original_source/worker/src/db.rs, ipfs_watcher.rs, src/routes/handlers.rs)
// centralizes its queries behind a handful of functions, and we follow suit.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolIface is the subset of *pgxpool.Pool that Store depends on, so
// tests can substitute pgxmock.PgxPoolIface for the real pool without a
// live Postgres.
type PoolIface interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store wraps a pgx connection pool with one method per persisted
// operation named in the component design.
type Store struct {
	pool PoolIface
}

// NewWithPool constructs a Store around an already-open pool, used by
// tests to inject a pgxmock pool.
func NewWithPool(pool PoolIface) *Store {
	return &Store{pool: pool}
}

// New opens a pooled Postgres connection and runs schema migration.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
