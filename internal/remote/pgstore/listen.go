package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/billsync/internal/remote"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Channel is the NOTIFY channel the documents trigger publishes on.
const Channel = "document_changes"

// Notifier delivers notifications of one LISTENing connection.
type Notifier interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Listener opens LISTENing connections.
type Listener interface {
	Listen(ctx context.Context) (Notifier, error)
}

// PoolListener takes connections out of a pool for listening. The connection
// is hijacked so it never returns to the pool in LISTEN state.
type PoolListener struct {
	Pool *pgxpool.Pool
}

func (l PoolListener) Listen(ctx context.Context) (Notifier, error) {
	c, err := l.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := c.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		c.Release()
		return nil, fmt.Errorf("listen %s: %w", Channel, err)
	}
	return c.Hijack(), nil
}

// notification is the trigger's JSON payload.
type notification struct {
	Op         string `json:"op"`
	UserID     string `json:"user_id"`
	Collection string `json:"collection"`
	DocID      string `json:"doc_id"`
}

func parseNotification(payload string) (notification, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return n, fmt.Errorf("bad notification payload: %w", err)
	}
	return n, nil
}

// Subscribe listens on a dedicated connection and turns the notifications of
// col into changes. Inserted and updated documents are re-read, since the
// payload only carries the key.
func (s *Store) Subscribe(ctx context.Context, col remote.CollectionRef) (remote.Subscription, error) {
	if s.listener == nil {
		return nil, errors.New("pgstore: no listener configured")
	}
	if col.UserID == "" {
		return nil, remote.ErrNoUser
	}

	n, err := s.listener.Listen(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		out:    make(chan remote.Change),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.pump(ctx, col, n, sub)
	return sub, nil
}

func (s *Store) pump(ctx context.Context, col remote.CollectionRef, n Notifier, sub *subscription) {
	defer close(sub.done)
	defer close(sub.out)
	defer func() { _ = n.Close(context.Background()) }()

	log := s.log.With("collection", col.Name)

	for {
		msg, err := n.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				sub.setErr(err)
				log.Error(ctx, "listen failed", "error", err)
			}
			return
		}

		note, err := parseNotification(msg.Payload)
		if err != nil {
			log.Warn(ctx, "skipping notification", "error", err)
			continue
		}
		if note.UserID != col.UserID || note.Collection != col.Name {
			continue
		}

		change, ok, err := s.toChange(ctx, col, note)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn(ctx, "failed to load changed document", "doc_id", note.DocID, "error", err)
			continue
		}
		if !ok {
			continue
		}

		select {
		case sub.out <- change:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Store) toChange(ctx context.Context, col remote.CollectionRef, note notification) (remote.Change, bool, error) {
	if note.Op == "delete" {
		return remote.Change{Type: remote.Removed, ID: note.DocID}, true, nil
	}

	doc, err := s.Get(ctx, col.Doc(note.DocID))
	if err != nil {
		return remote.Change{}, false, err
	}
	if doc == nil {
		// deleted again before we got to read it; the delete notification follows
		return remote.Change{}, false, nil
	}

	typ := remote.Modified
	if note.Op == "insert" {
		typ = remote.Added
	}
	return remote.Change{Type: typ, ID: note.DocID, Doc: doc}, true, nil
}

type subscription struct {
	out    chan remote.Change
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *subscription) Changes() <-chan remote.Change { return s.out }

func (s *subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the pump and waits for its connection to be closed.
func (s *subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}
