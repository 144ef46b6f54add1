// Package repoutil holds the SQL plumbing shared by the record repositories:
// sync envelope columns, owner visibility and NULL handling.
package repoutil

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/billsync/internal/common"
	"github.com/dmitrijs2005/billsync/internal/models"
)

// EnvelopeColumns lists the sync envelope columns in scan order.
const EnvelopeColumns = "id, cloud_id, sync_status, last_modified, last_modified_by, user_id"

// EnvelopeScan receives the nullable envelope columns of one row.
type EnvelopeScan struct {
	cloudID        sql.NullString
	status         string
	lastModified   string
	lastModifiedBy string
	userID         sql.NullString
}

// Dest returns scan destinations matching EnvelopeColumns.
func (s *EnvelopeScan) Dest(e *models.Envelope) []any {
	return []any{&e.ID, &s.cloudID, &s.status, &s.lastModified, &s.lastModifiedBy, &s.userID}
}

// Apply copies the scanned values into e.
func (s *EnvelopeScan) Apply(e *models.Envelope) {
	e.CloudID = s.cloudID.String
	e.SyncStatus = models.SyncStatus(s.status)
	e.LastModified = models.ParseTime(s.lastModified)
	e.LastModifiedBy = s.lastModifiedBy
	e.UserID = s.userID.String
}

// EnvelopeArgs returns values for
// cloud_id, sync_status, last_modified, last_modified_by, user_id.
// An empty status is stored as pending.
func EnvelopeArgs(e models.Envelope) []any {
	status := e.SyncStatus
	if status == "" {
		status = models.StatusPending
	}
	return []any{
		Null(e.CloudID),
		string(status),
		models.FormatTime(e.LastModified),
		e.LastModifiedBy,
		Null(e.UserID),
	}
}

// Owner returns the WHERE fragment selecting records visible to userID:
// signed in sees its own and unclaimed records, signed out only unclaimed.
func Owner(userID string) (string, []any) {
	if userID == "" {
		return "user_id IS NULL", nil
	}
	return "(user_id = ? OR user_id IS NULL)", []any{userID}
}

// Contains returns a LIKE pattern matching values that contain term. Use it
// with ESCAPE '\'.
func Contains(term string) string {
	term = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return "%" + term + "%"
}

// Null maps "" to SQL NULL.
func Null(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Now is the clock used for timestamps written by repositories.
var Now = func() time.Time { return time.Now().UTC() }

// ExpectOne turns a write that touched no row into common.ErrNotFound.
func ExpectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
