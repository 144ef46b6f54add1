package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/billsync/internal/common"
	"github.com/dmitrijs2005/billsync/internal/kinds"
	"github.com/dmitrijs2005/billsync/internal/logging"
	"github.com/dmitrijs2005/billsync/internal/repositories/metadata"
	"github.com/dmitrijs2005/billsync/internal/repositories/syncmeta"
)

type Status string

const (
	StatusOffline Status = "offline"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
)

// AllResult is the outcome of SyncAll. Err is set when the run was refused
// as a whole; per-collection failures are in Results.
type AllResult struct {
	Err     error
	Results []Result
}

func (r AllResult) Success() bool {
	if r.Err != nil {
		return false
	}
	for _, res := range r.Results {
		if !res.Success() {
			return false
		}
	}
	return true
}

// Pending counts records not yet acknowledged by the remote store.
type Pending struct {
	ByCollection map[string]int
	Total        int
}

// Orchestrator runs full sync passes over all collections and owns the
// auto-sync lifecycle.
type Orchestrator struct {
	deps      Deps
	syncers   []Syncer
	listeners *Listeners
	meta      metadata.Repository
	interval  time.Duration
	log       logging.Logger

	busy atomic.Bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator wires the orchestrator to its syncers, given in sync
// order, and registers itself as the listeners' enable hook. A zero interval
// disables interval syncs.
func NewOrchestrator(deps Deps, syncers []Syncer, listeners *Listeners, meta metadata.Repository, interval time.Duration) *Orchestrator {
	o := &Orchestrator{
		deps:      deps,
		syncers:   syncers,
		listeners: listeners,
		meta:      meta,
		interval:  interval,
		log:       deps.Log.With("component", "orchestrator"),
	}
	if listeners != nil {
		listeners.OnEnable(func(ctx context.Context) {
			res := o.SyncAll(ctx)
			if !res.Success() {
				o.log.Warn(ctx, "sync after enabling listeners failed", "error", res.firstErr())
			}
		})
	}
	return o
}

// SyncAll runs every collection pass in order. A call made while another
// is running returns ErrSyncInProgress at once.
func (o *Orchestrator) SyncAll(ctx context.Context) AllResult {
	if !o.busy.CompareAndSwap(false, true) {
		return AllResult{Err: common.ErrSyncInProgress}
	}
	defer o.busy.Store(false)

	if !o.deps.Conn.Online() {
		return AllResult{Err: common.ErrOffline}
	}
	if _, ok := o.deps.Users.CurrentUser(); !ok {
		return AllResult{Err: common.ErrUnauthenticated}
	}

	started := time.Now()
	out := AllResult{Results: make([]Result, 0, len(o.syncers))}
	for _, s := range o.syncers {
		out.Results = append(out.Results, s.Sync(ctx))
	}
	o.log.Info(ctx, "full sync finished", "success", out.Success(), "took", time.Since(started))
	return out
}

func (r AllResult) firstErr() error {
	if r.Err != nil {
		return r.Err
	}
	for _, res := range r.Results {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// SyncCollection runs one collection's pass without taking the busy flag.
func (o *Orchestrator) SyncCollection(ctx context.Context, collection string) Result {
	for _, s := range o.syncers {
		if s.Collection() == collection {
			return s.Sync(ctx)
		}
	}
	return Result{Collection: collection, Err: fmt.Errorf("%w: %q", common.ErrUnknownCollection, collection)}
}

func (o *Orchestrator) Status() Status {
	switch {
	case !o.deps.Conn.Online():
		return StatusOffline
	case o.busy.Load():
		return StatusSyncing
	default:
		return StatusSynced
	}
}

func (o *Orchestrator) PendingChanges(ctx context.Context) (Pending, error) {
	userID, _ := o.deps.Users.CurrentUser()
	p := Pending{ByCollection: make(map[string]int, len(o.syncers))}
	for _, s := range o.syncers {
		desc, err := kinds.Lookup(s.Collection())
		if err != nil {
			return Pending{}, err
		}
		n, err := pendingCount(ctx, o.deps.Local.SQL(), desc, userID)
		if err != nil {
			return Pending{}, err
		}
		p.ByCollection[desc.Collection] = n
		p.Total += n
	}
	return p, nil
}

// LastSyncTimes returns the time of the last successful pass per
// collection. Collections that never synced are absent.
func (o *Orchestrator) LastSyncTimes(ctx context.Context) (map[string]time.Time, error) {
	rows, err := syncmeta.NewSQLiteRepository(o.deps.Local.SQL()).List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(rows))
	for _, m := range rows {
		if !m.LastSyncTime.IsZero() {
			out[m.Collection] = m.LastSyncTime
		}
	}
	return out, nil
}

func (o *Orchestrator) AutoSyncEnabled(ctx context.Context) (bool, error) {
	return metadata.GetBool(ctx, o.meta, metadata.KeyAutoSync)
}

// EnableAutoSync persists the preference and, when signed in, starts the
// listeners, which runs a full sync. Signed out, the listeners start at the
// next sign-in.
func (o *Orchestrator) EnableAutoSync(ctx context.Context) error {
	if err := metadata.SetBool(ctx, o.meta, metadata.KeyAutoSync, true); err != nil {
		return fmt.Errorf("enable auto-sync: %w", err)
	}
	if o.listeners == nil {
		return nil
	}
	if _, ok := o.deps.Users.CurrentUser(); !ok {
		return nil
	}
	return o.listeners.Enable(ctx)
}

func (o *Orchestrator) DisableAutoSync(ctx context.Context) error {
	if err := metadata.SetBool(ctx, o.meta, metadata.KeyAutoSync, false); err != nil {
		return fmt.Errorf("disable auto-sync: %w", err)
	}
	if o.listeners != nil {
		o.listeners.Disable()
	}
	return nil
}

// Start begins the auto-sync lifecycle: listeners for a restored session
// and the interval loop. Stop ends it.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.ctx != nil {
		o.mu.Unlock()
		return errors.New("orchestrator already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	o.ctx, o.cancel = ctx, cancel
	o.mu.Unlock()

	o.goEnable("start")

	if o.interval > 0 {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.tick(ctx)
		}()
	}
	return nil
}

func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.ctx, o.cancel = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	o.wg.Wait()
	if o.listeners != nil {
		o.listeners.Disable()
	}
}

// Reconnected is the connectivity hook: with auto-sync on, listeners are
// re-created and a full sync runs.
func (o *Orchestrator) Reconnected() {
	o.goEnable("reconnect")
}

// AuthChanged is the session hook. Sign-out stops the listeners but keeps
// the auto-sync preference; sign-in restarts them if it is on.
func (o *Orchestrator) AuthChanged(userID string) {
	if userID == "" {
		if o.listeners != nil {
			o.listeners.Disable()
		}
		return
	}
	o.goEnable("sign-in")
}

// goEnable enables the listeners in the background when started, signed in
// and auto-sync is on.
func (o *Orchestrator) goEnable(reason string) {
	o.mu.Lock()
	ctx := o.ctx
	if ctx == nil || o.listeners == nil {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		if !o.autoSyncReady(ctx) {
			return
		}
		o.log.Info(ctx, "auto-sync", "reason", reason)
		if err := o.listeners.Enable(ctx); err != nil {
			o.log.Warn(ctx, "failed to enable listeners", "reason", reason, "error", err)
		}
	}()
}

func (o *Orchestrator) autoSyncReady(ctx context.Context) bool {
	if _, ok := o.deps.Users.CurrentUser(); !ok {
		return false
	}
	on, err := o.AutoSyncEnabled(ctx)
	if err != nil {
		o.log.Warn(ctx, "failed to read auto-sync preference", "error", err)
		return false
	}
	return on
}

func (o *Orchestrator) tick(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !o.deps.Conn.Online() || !o.autoSyncReady(ctx) {
				continue
			}
			res := o.SyncAll(ctx)
			if err := res.firstErr(); err != nil && !errors.Is(err, common.ErrSyncInProgress) {
				o.log.Warn(ctx, "interval sync failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
