// Package models defines the billing records persisted locally and mirrored
// into the remote document store.
package models

import "time"

// SyncStatus tells whether local fields have unacknowledged changes.
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSynced  SyncStatus = "synced"
)

// Envelope is the sync bookkeeping layered onto every syncable record.
type Envelope struct {
	// ID is the local primary key. It is never used as a remote document key.
	ID int64

	// CloudID is the remote document id once the record has been uploaded.
	// Empty until then.
	CloudID string

	SyncStatus SyncStatus

	// LastModified is the last write time by whichever side wrote last.
	LastModified time.Time

	// LastModifiedBy is the device that produced LastModified.
	LastModifiedBy string

	// UserID is the owning account; empty for unclaimed records created
	// before any sign-in.
	UserID string
}

// Unclaimed reports whether no account owns the record yet.
func (e Envelope) Unclaimed() bool { return e.UserID == "" }

// Touch marks the record as locally modified by device at now.
func (e *Envelope) Touch(now time.Time, device string) {
	e.SyncStatus = StatusPending
	e.LastModified = now.UTC()
	e.LastModifiedBy = device
}

// SyncMetadata is the per-collection bookkeeping row.
type SyncMetadata struct {
	Collection   string
	LastSyncTime time.Time
	Status       string
	PendingCount int
}

const (
	MetaStatusIdle   = "idle"
	MetaStatusSynced = "synced"
	MetaStatusError  = "error"
)
