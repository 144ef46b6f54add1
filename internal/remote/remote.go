// Package remote defines the document store the sync engine mirrors local
// records into. Documents live under a per-user namespace
// (users/{userId}/{collection}/{docId}); the store stamps lastModified with
// its own clock on every write and can stream changes per collection.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNoUser = errors.New("document ref without user")

// CollectionRef addresses one collection of one user.
type CollectionRef struct {
	UserID string
	Name   string
}

func (c CollectionRef) Path() string {
	return fmt.Sprintf("users/%s/%s", c.UserID, c.Name)
}

// Doc returns the ref of document id in c.
func (c CollectionRef) Doc(id string) Ref {
	return Ref{CollectionRef: c, ID: id}
}

// Ref addresses one document.
type Ref struct {
	CollectionRef
	ID string
}

func (r Ref) Path() string {
	return r.CollectionRef.Path() + "/" + r.ID
}

// Document is the JSON-serialisable remote form of a record: the payload
// fields plus sync provenance.
type Document struct {
	// ID is the document id within its collection; it doubles as cloudId.
	ID string `json:"-"`
	// LocalID is the local primary key on the device that last wrote the
	// document.
	LocalID        int64          `json:"id"`
	Data           map[string]any `json:"data"`
	LastModified   time.Time      `json:"lastModified"`
	LastModifiedBy string         `json:"lastModifiedBy"`
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	c := d
	c.Data = cloneMap(d.Data)
	return c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneMap(e)
		}
		return out
	default:
		return v
	}
}

// Filter is an equality condition on a top-level data key.
type Filter struct {
	Field string
	Value any
}

// Match reports whether doc satisfies every filter.
func Match(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc.Data[f.Field]
		if !ok || fmt.Sprint(v) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

type WriteOp int

const (
	// OpSet replaces the document.
	OpSet WriteOp = iota
	// OpMerge upserts, overwriting only the data keys present in Doc.
	OpMerge
	// OpDelete removes the document; deleting an absent document is a no-op.
	OpDelete
)

func (o WriteOp) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpMerge:
		return "merge"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Write is one element of an atomic batch.
type Write struct {
	Ref Ref
	Op  WriteOp
	Doc Document
}

type ChangeType string

const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Removed  ChangeType = "removed"
)

// Change is one notification of a subscription. Doc is nil for Removed.
type Change struct {
	Type ChangeType
	ID   string
	Doc  *Document
}

// Subscription streams changes of one collection until closed.
type Subscription interface {
	// Changes is closed when the subscription ends, by Close or by failure.
	Changes() <-chan Change
	// Err reports why the stream ended on its own; nil after Close.
	Err() error
	// Close is idempotent.
	Close() error
}

// DocumentStore is the remote side of the sync engine.
type DocumentStore interface {
	// Get returns (nil, nil) when the document does not exist.
	Get(ctx context.Context, ref Ref) (*Document, error)
	// Query returns the collection's documents matching all filters, most
	// recently modified first.
	Query(ctx context.Context, col CollectionRef, filters ...Filter) ([]Document, error)
	// SetMerged upserts doc, overwriting only the data keys it carries.
	SetMerged(ctx context.Context, ref Ref, doc Document) error
	// BatchWrite applies all writes atomically.
	BatchWrite(ctx context.Context, writes []Write) error
	Subscribe(ctx context.Context, col CollectionRef) (Subscription, error)
	Ping(ctx context.Context) error
}

// Validate checks that every write is addressed to a user namespace.
func Validate(writes []Write) error {
	for i, w := range writes {
		if w.Ref.UserID == "" || w.Ref.Name == "" || w.Ref.ID == "" {
			return fmt.Errorf("write %d (%s %s): %w", i, w.Op, w.Ref.Path(), ErrNoUser)
		}
	}
	return nil
}
