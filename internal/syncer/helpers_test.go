package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/billsync/internal/connectivity"
	"github.com/dmitrijs2005/billsync/internal/logging"
	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/dmitrijs2005/billsync/internal/remote"
	"github.com/dmitrijs2005/billsync/internal/remote/memstore"
	"github.com/dmitrijs2005/billsync/internal/repositories/customers"
	"github.com/dmitrijs2005/billsync/internal/store"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

var errRemoteDown = errors.New("remote down")

type fakeUsers struct {
	mu sync.Mutex
	id string
}

func (f *fakeUsers) CurrentUser() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, f.id != ""
}

func (f *fakeUsers) set(id string) {
	f.mu.Lock()
	f.id = id
	f.mu.Unlock()
}

type fakeDevice string

func (d fakeDevice) DeviceID(context.Context) (string, error) { return string(d), nil }

// serverClock ticks one second per reading, starting an hour after t0.
type serverClock struct {
	n atomic.Int64
}

func (c *serverClock) Now() time.Time {
	return t0.Add(time.Hour + time.Duration(c.n.Add(1))*time.Second)
}

// countingStore counts every remote call and can fail the next batch writes.
type countingStore struct {
	remote.DocumentStore

	calls       atomic.Int32
	batches     atomic.Int32
	failBatches atomic.Int32
}

func (c *countingStore) Get(ctx context.Context, ref remote.Ref) (*remote.Document, error) {
	c.calls.Add(1)
	return c.DocumentStore.Get(ctx, ref)
}

func (c *countingStore) Query(ctx context.Context, col remote.CollectionRef, filters ...remote.Filter) ([]remote.Document, error) {
	c.calls.Add(1)
	return c.DocumentStore.Query(ctx, col, filters...)
}

func (c *countingStore) SetMerged(ctx context.Context, ref remote.Ref, doc remote.Document) error {
	c.calls.Add(1)
	return c.DocumentStore.SetMerged(ctx, ref, doc)
}

func (c *countingStore) BatchWrite(ctx context.Context, writes []remote.Write) error {
	c.calls.Add(1)
	c.batches.Add(1)
	for {
		n := c.failBatches.Load()
		if n <= 0 {
			break
		}
		if c.failBatches.CompareAndSwap(n, n-1) {
			return errRemoteDown
		}
	}
	return c.DocumentStore.BatchWrite(ctx, writes)
}

func (c *countingStore) Subscribe(ctx context.Context, col remote.CollectionRef) (remote.Subscription, error) {
	c.calls.Add(1)
	return c.DocumentStore.Subscribe(ctx, col)
}

func (c *countingStore) Ping(ctx context.Context) error {
	c.calls.Add(1)
	return c.DocumentStore.Ping(ctx)
}

// env is one device: its own local store over a remote store that may be
// shared with other devices.
type env struct {
	local  *store.DB
	mem    *memstore.Store
	remote *countingStore
	conn   *connectivity.Static
	users  *fakeUsers
	device string
	deps   Deps
}

func newEnv(t *testing.T, device string, mem *memstore.Store) *env {
	t.Helper()
	local, err := store.OpenMemory(context.Background(), "syncer")
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	if mem == nil {
		clock := &serverClock{}
		mem = memstore.New(memstore.WithClock(clock.Now))
	}
	e := &env{
		local:  local,
		mem:    mem,
		remote: &countingStore{DocumentStore: mem},
		conn:   connectivity.NewStatic(true),
		users:  &fakeUsers{id: "u1"},
		device: device,
	}
	e.deps = Deps{
		Local:  local,
		Remote: e.remote,
		Users:  e.users,
		Conn:   e.conn,
		Device: fakeDevice(device),
		Now:    func() time.Time { return t0.Add(24 * time.Hour) },
		Log:    logging.Discard(),
	}
	return e
}

func (e *env) col(name string) remote.CollectionRef {
	return remote.CollectionRef{UserID: "u1", Name: name}
}

// addCustomer stores a pending customer edited at ts.
func (e *env) addCustomer(t *testing.T, name string, ts time.Time, cloudID string) *models.Customer {
	t.Helper()
	c := &models.Customer{Name: name, Phone: "555"}
	c.Touch(ts, e.device)
	c.CloudID = cloudID
	require.NoError(t, customers.NewSQLiteRepository(e.local.SQL()).Create(context.Background(), c))
	return c
}

func (e *env) customer(t *testing.T, id int64) *models.Customer {
	t.Helper()
	c, err := customers.NewSQLiteRepository(e.local.SQL()).GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (e *env) customers(t *testing.T) []models.Customer {
	t.Helper()
	list, err := customers.NewSQLiteRepository(e.local.SQL()).List(context.Background(), "u1")
	require.NoError(t, err)
	return list
}
