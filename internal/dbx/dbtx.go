// Package dbx provides the small database/sql abstractions shared by the
// local repositories: DBTX (implemented by *sql.DB and *sql.Tx), a
// transaction helper and sequential statement execution.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner is implemented by *sql.DB.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Statement is one parameterized SQL statement.
type Statement struct {
	SQL  string
	Args []any
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE customers SET sync_status = 'pending' WHERE id = ?", id)
//	    return err
//	})
func WithTx(ctx context.Context, db TxBeginner, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// ExecAll runs stmts in order on db and stops at the first failure. The
// returned error names the index of the failing statement.
func ExecAll(ctx context.Context, db DBTX, stmts []Statement) ([]sql.Result, error) {
	results := make([]sql.Result, 0, len(stmts))
	for i, st := range stmts {
		res, err := db.ExecContext(ctx, st.SQL, st.Args...)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}
