// Package pgstore is the PostgreSQL implementation of remote.DocumentStore.
// Documents are JSONB rows keyed by (user_id, collection, doc_id); a trigger
// announces every change on the "document_changes" channel.
package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is the subset of *pgxpool.Pool the store uses. It is also
// implemented by pgxmock.PgxPoolIface.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// DB wraps the pool so tests can substitute a mock.
type DB struct{ Pool PgxPool }

// New creates a connection pool for dsn.
func New(ctx context.Context, dsn string) (*DB, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return &DB{Pool: pool}, pool, nil
}

func (db *DB) Close() { db.Pool.Close() }
