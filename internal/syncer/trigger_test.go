package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/billsync/internal/common"
	"github.com/dmitrijs2005/billsync/internal/kinds"
	"github.com/dmitrijs2005/billsync/internal/logging"
	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timedSyncer records when each pass of the wrapped syncer starts.
type timedSyncer struct {
	Syncer

	mu     sync.Mutex
	starts []time.Time
}

func (s *timedSyncer) Sync(ctx context.Context) Result {
	s.mu.Lock()
	s.starts = append(s.starts, time.Now())
	s.mu.Unlock()
	return s.Syncer.Sync(ctx)
}

func (s *timedSyncer) times() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.starts...)
}

const testBase = 20 * time.Millisecond

func TestTrigger_RetriesWithBackoff(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	c := e.addCustomer(t, "Acme", t0, "")
	e.remote.failBatches.Store(2)

	s := &timedSyncer{Syncer: NewCollectionSyncer(kinds.Customers, e.deps)}
	tr := NewTrigger(context.Background(), []Syncer{s}, e.conn, e.users, 3, testBase, logging.Discard())

	tr.Fire(kinds.CollectionCustomers)
	tr.Wait()

	starts := s.times()
	require.Len(t, starts, 3)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), testBase)
	assert.GreaterOrEqual(t, starts[2].Sub(starts[1]), 2*testBase)

	got := e.customer(t, c.ID)
	assert.Equal(t, models.StatusSynced, got.SyncStatus)
	assert.Equal(t, 1, e.mem.Len(e.col("customers")))
	assert.Equal(t, int32(3), e.remote.batches.Load())
}

func TestTrigger_GivesUp(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	c := e.addCustomer(t, "Acme", t0, "")
	e.remote.failBatches.Store(10)

	s := &timedSyncer{Syncer: NewCollectionSyncer(kinds.Customers, e.deps)}
	tr := NewTrigger(context.Background(), []Syncer{s}, e.conn, e.users, 3, testBase, logging.Discard())

	tr.Fire(kinds.CollectionCustomers)
	tr.Wait()

	assert.Len(t, s.times(), 3)
	assert.Equal(t, models.StatusPending, e.customer(t, c.ID).SyncStatus)
	assert.Zero(t, e.mem.Len(e.col("customers")))
}

func TestTrigger_Offline(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	e.conn.Set(false)
	f := &fakeSyncer{name: kinds.CollectionCustomers}
	tr := NewTrigger(context.Background(), []Syncer{f}, e.conn, e.users, 3, testBase, logging.Discard())

	tr.Fire(kinds.CollectionCustomers)
	tr.Wait()

	assert.Zero(t, f.calls.Load())
}

func TestTrigger_SignedOut(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	e.users.set("")
	f := &fakeSyncer{name: kinds.CollectionCustomers}
	tr := NewTrigger(context.Background(), []Syncer{f}, e.conn, e.users, 3, testBase, logging.Discard())

	tr.Fire(kinds.CollectionCustomers)
	tr.Wait()

	assert.Zero(t, f.calls.Load())
}

func TestTrigger_DoesNotRetryRefusedPass(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	f := &fakeSyncer{name: kinds.CollectionCustomers, err: common.ErrUnauthenticated}
	tr := NewTrigger(context.Background(), []Syncer{f}, e.conn, e.users, 3, testBase, logging.Discard())

	tr.Fire(kinds.CollectionCustomers)
	tr.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
}

func TestTrigger_UnknownCollection(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	f := &fakeSyncer{name: kinds.CollectionCustomers}
	tr := NewTrigger(context.Background(), []Syncer{f}, e.conn, e.users, 3, testBase, logging.Discard())

	tr.Fire("vendors")
	tr.Wait()

	assert.Zero(t, f.calls.Load())
}

func TestTrigger_StopsWithContext(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	e.addCustomer(t, "Acme", t0, "")
	e.remote.failBatches.Store(10)
	ctx, cancel := context.WithCancel(context.Background())

	s := &timedSyncer{Syncer: NewCollectionSyncer(kinds.Customers, e.deps)}
	tr := NewTrigger(ctx, []Syncer{s}, e.conn, e.users, 3, time.Hour, logging.Discard())

	tr.Fire(kinds.CollectionCustomers)
	require.Eventually(t, func() bool { return len(s.times()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	tr.Wait()

	assert.Len(t, s.times(), 1)
}
