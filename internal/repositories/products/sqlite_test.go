package products

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/billsync/internal/common"
	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/dmitrijs2005/billsync/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := store.OpenMemory(context.Background(), "products")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRepository(db.SQL())
}

func TestCreateGetUpdateDelete(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	p := &models.Product{
		Name:               "Bolt M8",
		Price:              decimal.RequireFromString("12.50"),
		ClassificationCode: "7318",
		TaxRate:            decimal.RequireFromString("18"),
		Stock:              decimal.NewFromInt(100),
	}
	p.Touch(time.Now(), "device_a")
	require.NoError(t, r.Create(ctx, p))

	got, err := r.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bolt M8", got.Name)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, got.TaxRate.Equal(decimal.NewFromInt(18)))
	assert.True(t, got.Stock.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "7318", got.ClassificationCode)
	assert.Empty(t, got.Description)

	got.Stock = decimal.NewFromInt(99)
	require.NoError(t, r.Update(ctx, got))

	list, err := r.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Stock.Equal(decimal.NewFromInt(99)))

	require.NoError(t, r.Delete(ctx, p.ID))
	_, err = r.GetByID(ctx, p.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSearch(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, &models.Product{Name: "Bolt M8", Description: "zinc plated"}))
	require.NoError(t, r.Create(ctx, &models.Product{Name: "Nut M8"}))

	got, err := r.Search(ctx, "", "ZINC")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bolt M8", got[0].Name)

	got, err = r.Search(ctx, "", "m8")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = r.Search(ctx, "", "washer")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList_QueryErrorWrapped(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM products WHERE (user_id = ? OR user_id IS NULL)`)).
		WithArgs("u1").
		WillReturnError(assert.AnError)

	_, err = NewSQLiteRepository(sqlDB).List(context.Background(), "u1")
	require.ErrorIs(t, err, assert.AnError)
	require.ErrorContains(t, err, "failed to list products")
	require.NoError(t, mock.ExpectationsWereMet())
}
