package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/billsync/internal/common"
	"github.com/dmitrijs2005/billsync/internal/connectivity"
	"github.com/dmitrijs2005/billsync/internal/logging"
	"github.com/sethvargo/go-retry"
)

// Trigger runs a single collection's pass in the background after a local
// write, retrying failed passes with exponential backoff. It never reports
// failures to the writer.
type Trigger struct {
	ctx      context.Context
	syncers  map[string]Syncer
	conn     connectivity.Source
	users    UserSource
	attempts int
	base     time.Duration
	log      logging.Logger

	wg sync.WaitGroup
}

// NewTrigger returns a trigger whose background passes run under ctx.
// attempts counts the first try; base is the delay before the second.
func NewTrigger(ctx context.Context, syncers []Syncer, conn connectivity.Source, users UserSource, attempts int, base time.Duration, log logging.Logger) *Trigger {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = time.Second
	}
	m := make(map[string]Syncer, len(syncers))
	for _, s := range syncers {
		m[s.Collection()] = s
	}
	return &Trigger{
		ctx:      ctx,
		syncers:  m,
		conn:     conn,
		users:    users,
		attempts: attempts,
		base:     base,
		log:      log.With("component", "trigger"),
	}
}

// Fire schedules a pass of collection if someone is signed in.
func (t *Trigger) Fire(collection string) {
	if _, ok := t.users.CurrentUser(); !ok {
		return
	}
	s, ok := t.syncers[collection]
	if !ok {
		t.log.Warn(t.ctx, "trigger for unknown collection", "collection", collection)
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(s)
	}()
}

// Wait blocks until every fired pass has finished.
func (t *Trigger) Wait() { t.wg.Wait() }

func (t *Trigger) run(s Syncer) {
	log := t.log.With("collection", s.Collection())
	b := retry.WithMaxRetries(uint64(t.attempts-1), retry.NewExponential(t.base))

	attempt := 0
	err := retry.Do(t.ctx, b, func(ctx context.Context) error {
		if !t.conn.Online() {
			return common.ErrOffline
		}
		attempt++
		res := s.Sync(ctx)
		if res.Err == nil {
			return nil
		}
		if errors.Is(res.Err, common.ErrOffline) || errors.Is(res.Err, common.ErrUnauthenticated) {
			return res.Err
		}
		log.Debug(ctx, "sync attempt failed", "attempt", attempt, "error", res.Err)
		return retry.RetryableError(res.Err)
	})

	switch {
	case err == nil:
	case errors.Is(err, common.ErrOffline), errors.Is(err, common.ErrUnauthenticated):
		log.Debug(t.ctx, "background sync skipped", "reason", err)
	default:
		log.Warn(t.ctx, "background sync failed", "attempts", attempt, "error", err)
	}
}
