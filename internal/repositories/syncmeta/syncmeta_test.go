package syncmeta

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/dmitrijs2005/billsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := store.OpenMemory(context.Background(), "syncmeta")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRepository(db.SQL())
}

func TestUpsertAndGet(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	m, err := r.Get(ctx, "products")
	require.NoError(t, err)
	assert.Nil(t, m)

	ok := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, r.Upsert(ctx, models.SyncMetadata{
		Collection: "products", LastSyncTime: ok, Status: models.MetaStatusSynced, PendingCount: 0,
	}))

	m, err = r.Get(ctx, "products")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, ok.Equal(m.LastSyncTime))
	assert.Equal(t, models.MetaStatusSynced, m.Status)

	// a failed pass keeps the last good time
	require.NoError(t, r.Upsert(ctx, models.SyncMetadata{
		Collection: "products", Status: models.MetaStatusError, PendingCount: 3,
	}))
	m, err = r.Get(ctx, "products")
	require.NoError(t, err)
	assert.True(t, ok.Equal(m.LastSyncTime))
	assert.Equal(t, models.MetaStatusError, m.Status)
	assert.Equal(t, 3, m.PendingCount)
}

func TestList(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, models.SyncMetadata{Collection: "products", Status: models.MetaStatusSynced}))
	require.NoError(t, r.Upsert(ctx, models.SyncMetadata{Collection: "company", Status: models.MetaStatusSynced}))

	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "company", all[0].Collection)
	assert.True(t, all[0].LastSyncTime.IsZero())
}
