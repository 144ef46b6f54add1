// Package store is the local record store: an embedded SQLite database with
// goose migrations, raw statement execution for the sync engine, and the
// handle the typed repositories are built on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/billsync/internal/dbx"
	"github.com/dmitrijs2005/billsync/internal/store/migrations"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Row is one result row keyed by column name. Values are what the SQLite
// driver returns: string, int64, float64, []byte or nil.
type Row map[string]any

// String returns the column as a string; nil and non-text values give "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Int64 returns the column as an integer; nil and non-integer values give 0.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Result describes a write.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

type DB struct {
	sql *sql.DB
}

// New wraps an already opened database. Migrations are not applied.
func New(db *sql.DB) *DB {
	return &DB{sql: db}
}

// Open opens the SQLite database at dsn, enables foreign keys and applies
// pending migrations.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// a single connection serialises writers from the sync goroutines
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return New(db), nil
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// SQL exposes the underlying handle for repositories.
func (d *DB) SQL() *sql.DB { return d.sql }

func (d *DB) Close() error { return d.sql.Close() }

// Exec runs one parameterized write statement.
func (d *DB) Exec(ctx context.Context, stmt string, args ...any) (Result, error) {
	return Exec(ctx, d.sql, stmt, args...)
}

// Query runs one parameterized query and materialises all rows.
func (d *DB) Query(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	return Query(ctx, d.sql, stmt, args...)
}

// ExecBatch runs stmts sequentially inside one transaction; either all of
// them apply or none does.
func (d *DB) ExecBatch(ctx context.Context, stmts []dbx.Statement) ([]Result, error) {
	var out []Result
	err := dbx.WithTx(ctx, d.sql, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := dbx.ExecAll(ctx, tx, stmts)
		if err != nil {
			return err
		}
		out = make([]Result, len(res))
		for i, r := range res {
			out[i] = toResult(r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exec batch: %w", err)
	}
	return out, nil
}

// Tx runs fn inside a transaction on the store.
func (d *DB) Tx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, d.sql, nil, fn)
}

// Exec is DB.Exec for any DBTX, e.g. a transaction handle.
func Exec(ctx context.Context, db dbx.DBTX, stmt string, args ...any) (Result, error) {
	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, err
	}
	return toResult(res), nil
}

// Query is DB.Query for any DBTX, e.g. a transaction handle.
func Query(ctx context.Context, db dbx.DBTX, stmt string, args ...any) ([]Row, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func toResult(r sql.Result) Result {
	var res Result
	res.LastInsertID, _ = r.LastInsertId()
	res.RowsAffected, _ = r.RowsAffected()
	return res
}
