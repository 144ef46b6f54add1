package pgstore

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/billsync/internal/logging"
	"github.com/dmitrijs2005/billsync/internal/remote/pgstore/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// RunMigrations applies the embedded schema through a database/sql view of
// the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open connects to dsn, migrates the schema and returns a ready store.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Store, error) {
	db, pool, err := New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open remote store: %w", err)
	}
	if err := RunMigrations(ctx, pool); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate remote store: %w", err)
	}
	return NewStore(db, PoolListener{Pool: pool}, log), nil
}
