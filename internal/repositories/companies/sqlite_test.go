package companies

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/dmitrijs2005/billsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := store.OpenMemory(context.Background(), "companies")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRepository(db.SQL())
}

func TestGet_Empty(t *testing.T) {
	r := setup(t)

	c, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestSave_InsertThenUpdate(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	c := &models.Company{Name: "Billing Co", Logo: "data:image/png;base64,AAAA"}
	require.NoError(t, r.Save(ctx, c))
	require.NotZero(t, c.ID)

	got, err := r.Get(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Billing Co", got.Name)
	assert.Equal(t, "data:image/png;base64,AAAA", got.Logo)
	assert.Equal(t, models.StatusPending, got.SyncStatus)

	got.Address = "1 Main St"
	got.UserID = "u1"
	require.NoError(t, r.Save(ctx, got))

	// claimed: no longer visible signed out
	anon, err := r.Get(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, anon)

	mine, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, c.ID, mine.ID)
	assert.Equal(t, "1 Main St", mine.Address)
}

func TestGet_PrefersLatestRow(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	owned := &models.Company{Name: "Acme Ltd"}
	owned.UserID = "u1"
	require.NoError(t, r.Save(ctx, owned))
	unclaimed := &models.Company{Name: "Acme Group"}
	require.NoError(t, r.Save(ctx, unclaimed))

	got, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme Group", got.Name)
}
