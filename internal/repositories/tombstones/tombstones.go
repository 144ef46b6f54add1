// Package tombstones records local deletions of records that already exist
// remotely, so the next sync pass can delete the remote documents too.
package tombstones

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/billsync/internal/dbx"
	"github.com/dmitrijs2005/billsync/internal/models"
)

type Tombstone struct {
	Collection string
	CloudID    string
	UserID     string
	DeletedAt  time.Time
}

type Repository interface {
	Add(ctx context.Context, t Tombstone) error
	// List returns the collection's tombstones owned by userID.
	List(ctx context.Context, collection, userID string) ([]Tombstone, error)
	Remove(ctx context.Context, collection, cloudID string) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, t Tombstone) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_tombstones (collection_name, cloud_id, user_id, deleted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection_name, cloud_id) DO UPDATE SET deleted_at = excluded.deleted_at`,
		t.Collection, t.CloudID, t.UserID, models.FormatTime(t.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to add tombstone %s/%s: %w", t.Collection, t.CloudID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, collection, userID string) ([]Tombstone, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT collection_name, cloud_id, user_id, deleted_at FROM sync_tombstones
		WHERE collection_name = ? AND user_id = ? ORDER BY deleted_at`, collection, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tombstones: %w", err)
	}
	defer rows.Close()

	var result []Tombstone
	for rows.Next() {
		var (
			t  Tombstone
			at string
		)
		if err := rows.Scan(&t.Collection, &t.CloudID, &t.UserID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		t.DeletedAt = models.ParseTime(at)
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tombstones: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, collection, cloudID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_tombstones WHERE collection_name = ? AND cloud_id = ?`, collection, cloudID)
	if err != nil {
		return fmt.Errorf("failed to remove tombstone %s/%s: %w", collection, cloudID, err)
	}
	return nil
}
