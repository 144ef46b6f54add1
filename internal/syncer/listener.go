package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/billsync/internal/common"
	"github.com/dmitrijs2005/billsync/internal/dbx"
	"github.com/dmitrijs2005/billsync/internal/kinds"
	"github.com/dmitrijs2005/billsync/internal/logging"
	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/dmitrijs2005/billsync/internal/remote"
	"golang.org/x/sync/errgroup"
)

// Listeners keeps one remote subscription per collection and applies pushed
// changes to the local store as they arrive. Each collection's events are
// applied in order by its own goroutine.
type Listeners struct {
	deps  Deps
	descs []*kinds.Descriptor
	log   logging.Logger

	// enableMu serializes Enable and Disable so each subscription set is
	// torn down by exactly one of them.
	enableMu sync.Mutex

	mu       sync.Mutex
	onEnable func(ctx context.Context)
	subs     []remote.Subscription
	group    *errgroup.Group
	cancel   context.CancelFunc
}

func NewListeners(deps Deps) *Listeners {
	return &Listeners{
		deps:  deps,
		descs: kinds.All(),
		log:   deps.Log.With("component", "listeners"),
	}
}

// OnEnable registers the hook run after every successful Enable.
func (l *Listeners) OnEnable(fn func(ctx context.Context)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onEnable = fn
}

// Active reports whether subscriptions are open.
func (l *Listeners) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.group != nil
}

// Enable replaces any open subscriptions with fresh ones for the signed-in
// user and then runs the OnEnable hook. The subscriptions outlive ctx; they
// end with Disable.
func (l *Listeners) Enable(ctx context.Context) error {
	deviceID, err := l.deps.Device.DeviceID(ctx)
	if err != nil {
		return err
	}

	l.enableMu.Lock()
	hook, err := l.enable(ctx, deviceID)
	l.enableMu.Unlock()
	if err != nil {
		return err
	}

	if hook != nil {
		hook(ctx)
	}
	return nil
}

// enable opens the subscriptions and returns the OnEnable hook. The caller
// holds enableMu.
func (l *Listeners) enable(ctx context.Context, deviceID string) (func(context.Context), error) {
	userID, ok := l.deps.Users.CurrentUser()
	if !ok {
		return nil, common.ErrUnauthenticated
	}

	l.disable()

	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(lctx)

	subs := make([]remote.Subscription, 0, len(l.descs))
	for _, d := range l.descs {
		sub, err := l.deps.Remote.Subscribe(gctx, remote.CollectionRef{UserID: userID, Name: d.Collection})
		if err != nil {
			for _, s := range subs {
				_ = s.Close()
			}
			cancel()
			_ = g.Wait()
			return nil, fmt.Errorf("subscribe %s: %w", d.Collection, err)
		}
		subs = append(subs, sub)
		g.Go(func() error { return l.loop(gctx, d, userID, deviceID, sub) })
	}

	l.mu.Lock()
	l.subs, l.group, l.cancel = subs, g, cancel
	hook := l.onEnable
	l.mu.Unlock()

	l.log.Info(ctx, "listeners enabled", "user_id", userID)
	return hook, nil
}

// Disable closes all subscriptions and waits for their loops. It is safe to
// call when nothing is enabled.
func (l *Listeners) Disable() {
	l.enableMu.Lock()
	defer l.enableMu.Unlock()
	l.disable()
}

func (l *Listeners) disable() {
	l.mu.Lock()
	subs, g, cancel := l.subs, l.group, l.cancel
	l.subs, l.group, l.cancel = nil, nil, nil
	l.mu.Unlock()

	if g == nil {
		return
	}
	for _, s := range subs {
		_ = s.Close()
	}
	cancel()
	if err := g.Wait(); err != nil {
		l.log.Warn(context.Background(), "listener stopped with error", "error", err)
	}
	l.log.Info(context.Background(), "listeners disabled")
}

func (l *Listeners) loop(ctx context.Context, desc *kinds.Descriptor, userID, deviceID string, sub remote.Subscription) error {
	log := l.log.With("collection", desc.Collection)
	for ch := range sub.Changes() {
		if err := l.apply(ctx, desc, userID, deviceID, ch); err != nil {
			log.Warn(ctx, "failed to apply remote change", "type", ch.Type, "doc_id", ch.ID, "error", err)
			continue
		}
		log.Debug(ctx, "applied remote change", "type", ch.Type, "doc_id", ch.ID)
	}
	if err := sub.Err(); err != nil {
		return fmt.Errorf("listen %s: %w", desc.Collection, err)
	}
	return nil
}

func (l *Listeners) apply(ctx context.Context, desc *kinds.Descriptor, userID, deviceID string, ch remote.Change) error {
	return l.deps.Local.Tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return applyChange(ctx, tx, desc, userID, deviceID, ch)
	})
}

// applyChange mirrors one pushed change. Added and modified documents update
// only the fields they carry; a local edit newer than the push is kept.
func applyChange(ctx context.Context, tx dbx.DBTX, desc *kinds.Descriptor, userID, deviceID string, ch remote.Change) error {
	if ch.Type == remote.Removed {
		_, err := deleteByCloudID(ctx, tx, desc, userID, ch.ID)
		return err
	}
	if ch.Doc == nil {
		return fmt.Errorf("%s change without document", ch.Type)
	}
	doc := *ch.Doc
	if doc.ID == "" {
		doc.ID = ch.ID
	}

	c := codec{desc: desc, deviceID: deviceID}
	dec, err := c.decode(ctx, tx, doc.Data)
	if err != nil {
		return err
	}

	local, err := findLocal(ctx, tx, desc, userID, deviceID, doc.ID)
	if err != nil {
		return err
	}
	if local == nil {
		_, err := insertRemote(ctx, tx, desc, dec, doc, userID)
		return err
	}
	if local.status == models.StatusPending && local.modifiedAt().After(doc.LastModified) {
		return nil
	}
	_, err = applyRemote(ctx, tx, desc, local.id, &local.modified, dec, doc, userID)
	return err
}
