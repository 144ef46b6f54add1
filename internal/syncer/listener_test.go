package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/billsync/internal/common"
	"github.com/dmitrijs2005/billsync/internal/dbx"
	"github.com/dmitrijs2005/billsync/internal/kinds"
	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/dmitrijs2005/billsync/internal/remote"
	"github.com/dmitrijs2005/billsync/internal/repositories/customers"
	"github.com/dmitrijs2005/billsync/internal/repositories/invoices"
	"github.com/dmitrijs2005/billsync/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) applyChange(t *testing.T, desc *kinds.Descriptor, ch remote.Change) {
	t.Helper()
	err := e.local.Tx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error {
		return applyChange(ctx, tx, desc, "u1", e.device, ch)
	})
	require.NoError(t, err)
}

// customerNames is safe to poll from require.Eventually. nil means the read
// failed.
func (e *env) customerNames() []string {
	list, err := customers.NewSQLiteRepository(e.local.SQL()).List(context.Background(), "u1")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.Name)
	}
	return names
}

func TestApplyChange_Added(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	ts := t0.Add(time.Minute)

	e.applyChange(t, kinds.Customers, remote.Change{Type: remote.Added, ID: "c1", Doc: &remote.Document{
		ID: "c1", Data: map[string]any{"name": "Bob", "phone": "1"}, LastModified: ts, LastModifiedBy: "device_b",
	}})

	list := e.customers(t)
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].CloudID)
	assert.Equal(t, "Bob", list[0].Name)
	assert.Equal(t, "", list[0].Address)
	assert.Equal(t, models.StatusSynced, list[0].SyncStatus)
	assert.Equal(t, ts, list[0].LastModified)
}

func TestApplyChange_ModifiedUpdatesPresentFields(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	c := e.addCustomer(t, "Bob", t0, "c1")
	ts := t0.Add(time.Hour)

	e.applyChange(t, kinds.Customers, remote.Change{Type: remote.Modified, ID: "c1", Doc: &remote.Document{
		ID: "c1", Data: map[string]any{"name": "Robert"}, LastModified: ts, LastModifiedBy: "device_b",
	}})

	got := e.customer(t, c.ID)
	assert.Equal(t, "Robert", got.Name)
	assert.Equal(t, "555", got.Phone, "absent keys keep their local value")
	assert.Equal(t, ts, got.LastModified)
	assert.Equal(t, "device_b", got.LastModifiedBy)
	assert.Equal(t, models.StatusSynced, got.SyncStatus)
}

func TestApplyChange_ExplicitNullsStoreZeroValues(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	c := e.addCustomer(t, "Bob", t0, "c1")

	e.applyChange(t, kinds.Customers, remote.Change{Type: remote.Modified, ID: "c1", Doc: &remote.Document{
		ID: "c1", Data: map[string]any{"name": nil, "phone": nil}, LastModified: t0.Add(time.Hour), LastModifiedBy: "device_b",
	}})

	got := e.customer(t, c.ID)
	assert.Empty(t, got.Name)
	assert.Empty(t, got.Phone)
	assert.Equal(t, models.StatusSynced, got.SyncStatus)

	e.applyChange(t, kinds.Products, remote.Change{Type: remote.Added, ID: "p1", Doc: &remote.Document{
		ID: "p1", Data: map[string]any{"name": "Tea", "price": nil}, LastModified: t0, LastModifiedBy: "device_b",
	}})
	e.applyChange(t, kinds.Products, remote.Change{Type: remote.Modified, ID: "p1", Doc: &remote.Document{
		ID: "p1", Data: map[string]any{"name": nil, "stock": nil}, LastModified: t0.Add(time.Hour), LastModifiedBy: "device_b",
	}})

	rows, err := store.Query(context.Background(), e.local.SQL(), "SELECT name, price, stock FROM products WHERE cloud_id = 'p1'")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].String("name"))
	assert.Equal(t, "0", rows[0].String("price"))
	assert.Equal(t, "0", rows[0].String("stock"))
}

func TestApplyChange_KeepsNewerLocalEdit(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	c := e.addCustomer(t, "Mine", t0.Add(2*time.Hour), "c1")

	e.applyChange(t, kinds.Customers, remote.Change{Type: remote.Modified, ID: "c1", Doc: &remote.Document{
		ID: "c1", Data: map[string]any{"name": "Theirs"}, LastModified: t0.Add(time.Hour),
	}})

	got := e.customer(t, c.ID)
	assert.Equal(t, "Mine", got.Name)
	assert.Equal(t, models.StatusPending, got.SyncStatus)
}

func TestApplyChange_EchoOfOwnUpload(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	c := e.addCustomer(t, "Acme", t0, "")
	ts := t0.Add(time.Hour)

	// the push for our own placeholder upload may arrive before the pass
	// acknowledges it locally
	e.applyChange(t, kinds.Customers, remote.Change{Type: remote.Added, ID: "local_device_a_1", Doc: &remote.Document{
		ID: "local_device_a_1", LocalID: c.ID, Data: map[string]any{"name": "Acme"}, LastModified: ts, LastModifiedBy: "device_a",
	}})

	list := e.customers(t)
	require.Len(t, list, 1)
	assert.Equal(t, "local_device_a_1", list[0].CloudID)
	assert.Equal(t, models.StatusSynced, list[0].SyncStatus)
}

func TestApplyChange_RemovedCascadesItems(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	ctx := context.Background()

	inv := &models.Invoice{
		Number: "INV-2026-007",
		Date:   "2026-04-01",
		Items:  []models.InvoiceItem{{Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(10)}},
	}
	inv.Recalculate()
	inv.Touch(t0, "device_a")
	inv.CloudID = "i1"
	inv.SyncStatus = models.StatusSynced
	require.NoError(t, invoices.NewSQLiteRepository(e.local.SQL()).Create(ctx, inv))

	e.applyChange(t, kinds.Invoices, remote.Change{Type: remote.Removed, ID: "i1"})

	_, err := invoices.NewSQLiteRepository(e.local.SQL()).GetByID(ctx, inv.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	rows, err := store.Query(ctx, e.local.SQL(), "SELECT id FROM invoice_items")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestApplyChange_RemovedUnknownIsNoop(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	e.addCustomer(t, "Acme", t0, "c1")

	e.applyChange(t, kinds.Customers, remote.Change{Type: remote.Removed, ID: "nope"})

	assert.Len(t, e.customers(t), 1)
}

func TestListeners_EnableRequiresUser(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	e.users.set("")

	l := NewListeners(e.deps)
	assert.ErrorIs(t, l.Enable(context.Background()), common.ErrUnauthenticated)
	assert.False(t, l.Active())
	assert.Zero(t, e.remote.calls.Load())
}

func TestListeners_DisableIdempotent(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	l := NewListeners(e.deps)

	l.Disable()

	require.NoError(t, l.Enable(context.Background()))
	assert.True(t, l.Active())
	assert.Equal(t, 1, e.mem.Subscribers(e.col("customers")))

	l.Disable()
	l.Disable()
	assert.False(t, l.Active())
	assert.Zero(t, e.mem.Subscribers(e.col("customers")))
}

func TestListeners_EnableReplacesSubscriptions(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	l := NewListeners(e.deps)
	calls := 0
	l.OnEnable(func(context.Context) { calls++ })

	require.NoError(t, l.Enable(context.Background()))
	require.NoError(t, l.Enable(context.Background()))
	t.Cleanup(l.Disable)

	assert.Equal(t, 2, calls)
	for _, d := range kinds.All() {
		assert.Equal(t, 1, e.mem.Subscribers(e.col(d.Collection)), d.Collection)
	}
}

func TestListeners_AppliesPushedChanges(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	l := NewListeners(e.deps)
	require.NoError(t, l.Enable(context.Background()))
	t.Cleanup(l.Disable)

	e.mem.Seed(e.col("customers").Doc("c7"), remote.Document{
		Data: map[string]any{"name": "Pushed"}, LastModified: t0, LastModifiedBy: "device_b",
	})
	require.Eventually(t, func() bool {
		names := e.customerNames()
		return len(names) == 1 && names[0] == "Pushed"
	}, 2*time.Second, 10*time.Millisecond)

	e.mem.Seed(e.col("customers").Doc("c7"), remote.Document{
		Data: map[string]any{"name": "Renamed"}, LastModified: t0.Add(time.Minute), LastModifiedBy: "device_b",
	})
	require.Eventually(t, func() bool {
		names := e.customerNames()
		return len(names) == 1 && names[0] == "Renamed"
	}, 2*time.Second, 10*time.Millisecond)

	e.mem.Remove(e.col("customers").Doc("c7"))
	require.Eventually(t, func() bool {
		names := e.customerNames()
		return names != nil && len(names) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestListeners_ConcurrentEnableLeavesOneSet(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	l := NewListeners(e.deps)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Enable(context.Background()))
		}()
	}
	wg.Wait()

	for _, d := range kinds.All() {
		assert.Equal(t, 1, e.mem.Subscribers(e.col(d.Collection)), d.Collection)
	}

	l.Disable()
	assert.False(t, l.Active())
	for _, d := range kinds.All() {
		assert.Zero(t, e.mem.Subscribers(e.col(d.Collection)), d.Collection)
	}
}

func TestListeners_DisableDuringEnable(t *testing.T) {
	e := newEnv(t, "device_a", nil)
	l := NewListeners(e.deps)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = l.Enable(context.Background())
		}()
		go func() {
			defer wg.Done()
			l.Disable()
		}()
	}
	wg.Wait()
	l.Disable()

	for _, d := range kinds.All() {
		assert.Zero(t, e.mem.Subscribers(e.col(d.Collection)), d.Collection)
	}
}
