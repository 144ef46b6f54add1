// Package syncmeta keeps one bookkeeping row per synced collection: when it
// last completed a pass, the coarse outcome and how many records were still
// pending afterwards.
package syncmeta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/billsync/internal/dbx"
	"github.com/dmitrijs2005/billsync/internal/models"
)

type Repository interface {
	// Get returns (nil, nil) for a collection that never synced.
	Get(ctx context.Context, collection string) (*models.SyncMetadata, error)
	List(ctx context.Context) ([]models.SyncMetadata, error)
	Upsert(ctx context.Context, m models.SyncMetadata) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, collection string) (*models.SyncMetadata, error) {
	var (
		m    models.SyncMetadata
		last string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT collection_name, last_sync_time, sync_status, pending_count
		FROM sync_metadata WHERE collection_name = ?`, collection).
		Scan(&m.Collection, &last, &m.Status, &m.PendingCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync metadata[%s]: %w", collection, err)
	}
	m.LastSyncTime = models.ParseTime(last)
	return &m, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.SyncMetadata, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT collection_name, last_sync_time, sync_status, pending_count
		FROM sync_metadata ORDER BY collection_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync metadata: %w", err)
	}
	defer rows.Close()

	var result []models.SyncMetadata
	for rows.Next() {
		var (
			m    models.SyncMetadata
			last string
		)
		if err := rows.Scan(&m.Collection, &last, &m.Status, &m.PendingCount); err != nil {
			return nil, fmt.Errorf("failed to scan sync metadata: %w", err)
		}
		m.LastSyncTime = models.ParseTime(last)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync metadata: %w", err)
	}
	return result, nil
}

// Upsert writes m. A zero LastSyncTime keeps the stored one, so a failed pass
// does not erase the time of the last good pass.
func (r *SQLiteRepository) Upsert(ctx context.Context, m models.SyncMetadata) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (collection_name, last_sync_time, sync_status, pending_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection_name) DO UPDATE SET
			last_sync_time = CASE WHEN excluded.last_sync_time = '' THEN sync_metadata.last_sync_time ELSE excluded.last_sync_time END,
			sync_status = excluded.sync_status,
			pending_count = excluded.pending_count`,
		m.Collection, models.FormatTime(m.LastSyncTime), m.Status, m.PendingCount)
	if err != nil {
		return fmt.Errorf("failed to upsert sync metadata[%s]: %w", m.Collection, err)
	}
	return nil
}
