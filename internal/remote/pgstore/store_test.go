package pgstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/dmitrijs2005/billsync/internal/logging"
	"github.com/dmitrijs2005/billsync/internal/remote"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var products = remote.CollectionRef{UserID: "u1", Name: "products"}

func newStore(t *testing.T, l Listener) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(&DB{Pool: mock}, l, logging.Discard()), mock
}

func docColumns() []string {
	return []string{"local_id", "data", "last_modified", "last_modified_by"}
}

func TestGet_OK(t *testing.T) {
	s, mock := newStore(t, nil)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(selectDoc)).
		WithArgs("u1", "products", "p1").
		WillReturnRows(pgxmock.NewRows(docColumns()).
			AddRow(int64(7), []byte(`{"name":"Tea","stock":"3"}`), t0, "device_a"))

	d, err := s.Get(context.Background(), products.Doc("p1"))
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "p1", d.ID)
	assert.Equal(t, int64(7), d.LocalID)
	assert.Equal(t, map[string]any{"name": "Tea", "stock": "3"}, d.Data)
	assert.Equal(t, t0, d.LastModified)
	assert.Equal(t, "device_a", d.LastModifiedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	s, mock := newStore(t, nil)

	mock.ExpectQuery(regexp.QuoteMeta(selectDoc)).
		WithArgs("u1", "company", "settings").
		WillReturnError(pgx.ErrNoRows)

	d, err := s.Get(context.Background(), remote.CollectionRef{UserID: "u1", Name: "company"}.Doc("settings"))
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestGet_Error(t *testing.T) {
	s, mock := newStore(t, nil)
	boom := errors.New("boom")

	mock.ExpectQuery(regexp.QuoteMeta(selectDoc)).
		WithArgs("u1", "products", "p1").
		WillReturnError(boom)

	_, err := s.Get(context.Background(), products.Doc("p1"))
	require.ErrorIs(t, err, boom)
}

func TestBuildQuery(t *testing.T) {
	q, args := buildQuery(products, []remote.Filter{{Field: "status", Value: "paid"}, {Field: "customer_id", Value: 3}})

	assert.Equal(t, selectDocs+" AND data->>$3 = $4 AND data->>$5 = $6 ORDER BY last_modified DESC, doc_id", q)
	assert.Equal(t, []any{"u1", "products", "status", "paid", "customer_id", "3"}, args)
}

func TestQuery_OK(t *testing.T) {
	s, mock := newStore(t, nil)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	q, _ := buildQuery(products, nil)

	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs("u1", "products").
		WillReturnRows(pgxmock.NewRows([]string{"doc_id", "local_id", "data", "last_modified", "last_modified_by"}).
			AddRow("p2", int64(2), []byte(`{"name":"B"}`), t0.Add(time.Minute), "device_b").
			AddRow("p1", int64(1), []byte(`{"name":"A"}`), t0, "device_a"))

	docs, err := s.Query(context.Background(), products)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "p2", docs[0].ID)
	assert.Equal(t, "A", docs[1].Data["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetMerged(t *testing.T) {
	s, mock := newStore(t, nil)

	mock.ExpectExec(regexp.QuoteMeta(upsertMerge)).
		WithArgs("u1", "products", "p1", int64(7), `{"price":"3"}`, "device_a").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetMerged(context.Background(), products.Doc("p1"), remote.Document{
		LocalID:        7,
		Data:           map[string]any{"price": "3"},
		LastModifiedBy: "device_a",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetMerged_NoUser(t *testing.T) {
	s, mock := newStore(t, nil)

	err := s.SetMerged(context.Background(), remote.CollectionRef{Name: "products"}.Doc("p1"), remote.Document{})
	require.ErrorIs(t, err, remote.ErrNoUser)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchWrite_Commit(t *testing.T) {
	s, mock := newStore(t, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertSet)).
		WithArgs("u1", "products", "local_device_a_1", int64(1), `{"name":"Tea"}`, "device_a").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(upsertMerge)).
		WithArgs("u1", "products", "p9", int64(2), `{}`, "device_a").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteDoc)).
		WithArgs("u1", "products", "p3").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := s.BatchWrite(context.Background(), []remote.Write{
		{Ref: products.Doc("local_device_a_1"), Op: remote.OpSet, Doc: remote.Document{LocalID: 1, Data: map[string]any{"name": "Tea"}, LastModifiedBy: "device_a"}},
		{Ref: products.Doc("p9"), Op: remote.OpMerge, Doc: remote.Document{LocalID: 2, LastModifiedBy: "device_a"}},
		{Ref: products.Doc("p3"), Op: remote.OpDelete},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchWrite_RollbackOnError(t *testing.T) {
	s, mock := newStore(t, nil)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertSet)).
		WithArgs("u1", "products", "p1", int64(1), `{}`, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteDoc)).
		WithArgs("u1", "products", "p2").
		WillReturnError(boom)
	mock.ExpectRollback()

	err := s.BatchWrite(context.Background(), []remote.Write{
		{Ref: products.Doc("p1"), Op: remote.OpSet, Doc: remote.Document{LocalID: 1}},
		{Ref: products.Doc("p2"), Op: remote.OpDelete},
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchWrite_BeginError(t *testing.T) {
	s, mock := newStore(t, nil)
	mock.ExpectBegin().WillReturnError(errors.New("down"))

	err := s.BatchWrite(context.Background(), []remote.Write{{Ref: products.Doc("p1"), Op: remote.OpDelete}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin batch")
}

func TestPing(t *testing.T) {
	s, mock := newStore(t, nil)
	mock.ExpectPing()
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
