package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/AppHub/internal/port/database"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements database.Queries on top of a pool or a transaction.
type queries struct {
	db dbtx
}

// Store implements database.Store using PostgreSQL.
type Store struct {
	queries
	pool *pgxpool.Pool
}

var _ database.Store = (*Store)(nil)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn inside a READ COMMITTED transaction. All writes commit
// together or not at all. Each statement sees rows committed before it
// started, so an insert that loses a unique race can still identify the
// winning row. A failed begin or commit reports ErrStoreUnavailable; errors
// returned by fn pass through unchanged after rollback.
func (s *Store) WithTx(ctx context.Context, fn func(q database.Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return storeErr(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr(err, "commit transaction")
	}
	return nil
}
