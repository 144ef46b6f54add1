package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/billsync/internal/dbx"
)

// SQLiteRepository keeps metadata in the "metadata" table.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns (nil, nil) when the key is absent. A present key with an
// empty value reads as an empty, non-nil slice.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	row := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key)
	switch err := row.Scan(&value); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return r.exec(ctx, fmt.Sprintf("set metadata[%s]", key), `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	return r.exec(ctx, fmt.Sprintf("delete metadata[%s]", key), `DELETE FROM metadata WHERE key = ?`, key)
}

func (r *SQLiteRepository) exec(ctx context.Context, op string, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}
