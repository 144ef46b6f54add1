// Package memstore is an in-process remote.DocumentStore. It backs the CLI
// when no remote database is configured and stands in for the cloud store
// in tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/billsync/internal/remote"
)

type Option func(*Store)

// WithClock replaces the server clock used to stamp lastModified.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	mu   sync.Mutex
	docs map[string]map[string]remote.Document // collection path -> doc id -> doc
	subs map[string]map[*subscription]struct{}
	now  func() time.Time
}

var _ remote.DocumentStore = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		docs: make(map[string]map[string]remote.Document),
		subs: make(map[string]map[*subscription]struct{}),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Get(ctx context.Context, ref remote.Ref) (*remote.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[ref.CollectionRef.Path()][ref.ID]
	if !ok {
		return nil, nil
	}
	c := d.Clone()
	return &c, nil
}

func (s *Store) Query(ctx context.Context, col remote.CollectionRef, filters ...remote.Filter) ([]remote.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []remote.Document
	for _, d := range s.docs[col.Path()] {
		if remote.Match(d, filters) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].LastModified.After(out[j].LastModified)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SetMerged(ctx context.Context, ref remote.Ref, doc remote.Document) error {
	return s.BatchWrite(ctx, []remote.Write{{Ref: ref, Op: remote.OpMerge, Doc: doc}})
}

func (s *Store) BatchWrite(ctx context.Context, writes []remote.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := remote.Validate(writes); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, w := range writes {
		s.apply(w, now, false)
	}
	return nil
}

// Seed stores doc under ref exactly as given, keeping its LastModified, and
// notifies subscribers. It simulates a write made by another device.
func (s *Store) Seed(ref remote.Ref, doc remote.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(remote.Write{Ref: ref, Op: remote.OpSet, Doc: doc}, doc.LastModified, true)
}

// Remove deletes ref and notifies subscribers, as another device would.
func (s *Store) Remove(ref remote.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(remote.Write{Ref: ref, Op: remote.OpDelete}, time.Time{}, true)
}

// Len returns the number of documents in col.
func (s *Store) Len(col remote.CollectionRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[col.Path()])
}

// apply must be called with s.mu held.
func (s *Store) apply(w remote.Write, now time.Time, keepTime bool) {
	path := w.Ref.CollectionRef.Path()
	coll := s.docs[path]
	if coll == nil {
		coll = make(map[string]remote.Document)
		s.docs[path] = coll
	}
	existing, exists := coll[w.Ref.ID]

	if w.Op == remote.OpDelete {
		if !exists {
			return
		}
		delete(coll, w.Ref.ID)
		s.notify(path, remote.Change{Type: remote.Removed, ID: w.Ref.ID})
		return
	}

	doc := w.Doc.Clone()
	doc.ID = w.Ref.ID
	if w.Op == remote.OpMerge && exists {
		merged := existing.Clone()
		if merged.Data == nil {
			merged.Data = make(map[string]any, len(doc.Data))
		}
		for k, v := range doc.Data {
			merged.Data[k] = v
		}
		merged.LocalID = doc.LocalID
		merged.LastModifiedBy = doc.LastModifiedBy
		doc = merged
	}
	if doc.Data == nil {
		doc.Data = map[string]any{}
	}
	if !keepTime {
		doc.LastModified = now
	}
	coll[w.Ref.ID] = doc

	typ := remote.Added
	if exists {
		typ = remote.Modified
	}
	pushed := doc.Clone()
	s.notify(path, remote.Change{Type: typ, ID: doc.ID, Doc: &pushed})
}

func (s *Store) notify(path string, c remote.Change) {
	for sub := range s.subs[path] {
		if c.Doc != nil {
			d := c.Doc.Clone()
			c.Doc = &d
		}
		sub.push(c)
	}
}

func (s *Store) Subscribe(ctx context.Context, col remote.CollectionRef) (remote.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := newSubscription(func(sub *subscription) {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[col.Path()], sub)
	})

	s.mu.Lock()
	if s.subs[col.Path()] == nil {
		s.subs[col.Path()] = make(map[*subscription]struct{})
	}
	s.subs[col.Path()][sub] = struct{}{}
	s.mu.Unlock()

	go sub.run()
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Subscribers returns the number of open subscriptions on col.
func (s *Store) Subscribers(col remote.CollectionRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[col.Path()])
}
