// Package connectivity tracks whether the remote document store is reachable.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/billsync/internal/logging"
)

// Source reports the current connectivity sample. Readers must not assume
// the answer stays valid for the duration of an operation.
type Source interface {
	Online() bool
}

// Static is a Source whose state is set by hand.
type Static struct {
	online atomic.Bool
}

func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) Online() bool { return s.online.Load() }

func (s *Static) Set(online bool) { s.online.Store(online) }

// Pinger is what the monitor pings; remote.DocumentStore satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingTimeout bounds a single ping.
const PingTimeout = 3 * time.Second

// Monitor samples a Pinger on a fixed interval.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	log      logging.Logger

	online atomic.Bool

	mu          sync.Mutex
	onReconnect []func()
}

func NewMonitor(p Pinger, interval time.Duration, log logging.Logger) *Monitor {
	return &Monitor{pinger: p, interval: interval, log: log.With("component", "connectivity")}
}

func (m *Monitor) Online() bool { return m.online.Load() }

// OnReconnect registers fn to run, on the monitor goroutine, after every
// offline to online transition.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnect = append(m.onReconnect, fn)
}

// Check pings once and updates the state. It returns the new state.
func (m *Monitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, PingTimeout)
	err := m.pinger.Ping(pctx)
	cancel()

	now := err == nil
	was := m.online.Swap(now)
	switch {
	case was && !now:
		m.log.Warn(ctx, "remote store unreachable", "error", err)
	case !was && now:
		m.log.Info(ctx, "remote store reachable")
		m.mu.Lock()
		hooks := append([]func(){}, m.onReconnect...)
		m.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
	}
	return now
}

// Run pings immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
