// Package syncer reconciles the local record store with the remote document
// store: one generic pass per collection, an orchestrator running the passes
// in order, real-time listeners and the retrying trigger fired by local
// writes.
package syncer

import (
	"context"
	"time"
)

// Result is the outcome of one collection pass. Passes report failure here
// instead of returning an error.
type Result struct {
	Collection string
	Err        error

	Uploaded   int
	Downloaded int
	Updated    int
	Deleted    int
	// Skipped counts remote documents that could not be applied locally.
	// They are retried on the next pass.
	Skipped int
}

func (r Result) Success() bool { return r.Err == nil }

// Changed reports whether the pass wrote anything on either side.
func (r Result) Changed() bool {
	return r.Uploaded+r.Downloaded+r.Updated+r.Deleted > 0
}

// Syncer runs passes for one collection.
type Syncer interface {
	Collection() string
	Sync(ctx context.Context) Result
}

// UserSource reports the signed-in account.
type UserSource interface {
	CurrentUser() (string, bool)
}

// DeviceSource hands out this installation's id.
type DeviceSource interface {
	DeviceID(ctx context.Context) (string, error)
}

func utcNow() time.Time { return time.Now().UTC() }
