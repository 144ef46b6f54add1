package pgstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/dmitrijs2005/billsync/internal/remote"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	ch     chan *pgconn.Notification
	fail   chan error
	closed chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		ch:     make(chan *pgconn.Notification, 8),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakeNotifier) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case n := <-f.ch:
		return n, nil
	case err := <-f.fail:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeNotifier) Close(context.Context) error {
	close(f.closed)
	return nil
}

type fakeListener struct{ n *fakeNotifier }

func (l fakeListener) Listen(context.Context) (Notifier, error) { return l.n, nil }

func (f *fakeNotifier) send(payload string) {
	f.ch <- &pgconn.Notification{Channel: Channel, Payload: payload}
}

func next(t *testing.T, sub remote.Subscription) (remote.Change, bool) {
	t.Helper()
	select {
	case c, ok := <-sub.Changes():
		return c, ok
	case <-time.After(time.Second):
		t.Fatal("no change received")
		return remote.Change{}, false
	}
}

func TestParseNotification(t *testing.T) {
	n, err := parseNotification(`{"op":"update","user_id":"u1","collection":"products","doc_id":"p1"}`)
	require.NoError(t, err)
	assert.Equal(t, notification{Op: "update", UserID: "u1", Collection: "products", DocID: "p1"}, n)

	_, err = parseNotification("nope")
	require.Error(t, err)
}

func TestSubscribe_TranslatesNotifications(t *testing.T) {
	fn := newFakeNotifier()
	s, mock := newStore(t, fakeListener{n: fn})
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(selectDoc)).
		WithArgs("u1", "products", "p1").
		WillReturnRows(pgxmock.NewRows(docColumns()).AddRow(int64(1), []byte(`{"name":"Tea"}`), t0, "device_b"))

	sub, err := s.Subscribe(context.Background(), products)
	require.NoError(t, err)

	// foreign user and other collection are ignored
	fn.send(`{"op":"insert","user_id":"u2","collection":"products","doc_id":"x"}`)
	fn.send(`{"op":"insert","user_id":"u1","collection":"customers","doc_id":"y"}`)
	fn.send(`garbage`)
	fn.send(`{"op":"insert","user_id":"u1","collection":"products","doc_id":"p1"}`)
	fn.send(`{"op":"delete","user_id":"u1","collection":"products","doc_id":"p1"}`)

	c, ok := next(t, sub)
	require.True(t, ok)
	assert.Equal(t, remote.Added, c.Type)
	require.NotNil(t, c.Doc)
	assert.Equal(t, "Tea", c.Doc.Data["name"])
	assert.Equal(t, t0, c.Doc.LastModified)

	c, ok = next(t, sub)
	require.True(t, ok)
	assert.Equal(t, remote.Removed, c.Type)
	assert.Equal(t, "p1", c.ID)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Err())
	<-fn.closed
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscribe_ListenFailureEndsStream(t *testing.T) {
	fn := newFakeNotifier()
	s, _ := newStore(t, fakeListener{n: fn})

	sub, err := s.Subscribe(context.Background(), products)
	require.NoError(t, err)

	fn.fail <- errors.New("connection lost")

	_, ok := next(t, sub)
	assert.False(t, ok)
	assert.EqualError(t, sub.Err(), "connection lost")
	require.NoError(t, sub.Close())
}

func TestSubscribe_RequiresListenerAndUser(t *testing.T) {
	s, _ := newStore(t, nil)
	_, err := s.Subscribe(context.Background(), products)
	require.Error(t, err)

	s, _ = newStore(t, fakeListener{n: newFakeNotifier()})
	_, err = s.Subscribe(context.Background(), remote.CollectionRef{Name: "products"})
	require.ErrorIs(t, err, remote.ErrNoUser)
}
