package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/billsync/internal/dbx"
	"github.com/dmitrijs2005/billsync/internal/kinds"
	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/dmitrijs2005/billsync/internal/remote"
	"github.com/dmitrijs2005/billsync/internal/repositories/repoutil"
	"github.com/dmitrijs2005/billsync/internal/store"
)

// localRecord is one row of a kind's table as read at the start of a pass.
type localRecord struct {
	row      store.Row
	id       int64
	cloudID  string
	status   models.SyncStatus
	modified string // raw last_modified, the write-back guard
}

func newLocalRecord(r store.Row) localRecord {
	return localRecord{
		row:      r,
		id:       r.Int64("id"),
		cloudID:  r.String("cloud_id"),
		status:   models.SyncStatus(r.String("sync_status")),
		modified: r.String("last_modified"),
	}
}

func (l localRecord) modifiedAt() time.Time { return models.ParseTime(l.modified) }

func loadLocal(ctx context.Context, q dbx.DBTX, desc *kinds.Descriptor, userID string) ([]localRecord, error) {
	where, args := repoutil.Owner(userID)
	rows, err := store.Query(ctx, q, fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY id", desc.Table, where), args...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", desc.Table, err)
	}
	out := make([]localRecord, len(rows))
	for i, r := range rows {
		out[i] = newLocalRecord(r)
	}
	return out, nil
}

// collapseSingleton reduces the visible rows of a singleton kind to the most
// recently modified one, deleting the others. Several rows appear when the
// record was edited while signed out after an earlier sign-in had claimed it.
func collapseSingleton(ctx context.Context, tx dbx.DBTX, desc *kinds.Descriptor, locals []localRecord) (localRecord, error) {
	keep := locals[0]
	for _, l := range locals[1:] {
		if l.modifiedAt().After(keep.modifiedAt()) ||
			(l.modifiedAt().Equal(keep.modifiedAt()) && l.status == models.StatusPending && keep.status != models.StatusPending) {
			keep = l
		}
	}
	for _, l := range locals {
		if l.id == keep.id {
			continue
		}
		if _, err := store.Exec(ctx, tx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", desc.Table), l.id); err != nil {
			return localRecord{}, fmt.Errorf("collapse %s: %w", desc.Table, err)
		}
	}
	return keep, nil
}

// findLocal looks a document up locally: by cloud id, then by this device's
// placeholder. A singleton matches its only row.
func findLocal(ctx context.Context, q dbx.DBTX, desc *kinds.Descriptor, userID, deviceID, docID string) (*localRecord, error) {
	where, args := repoutil.Owner(userID)
	sel := fmt.Sprintf("SELECT * FROM %s WHERE %s", desc.Table, where)

	rows, err := store.Query(ctx, q, sel+" AND cloud_id = ? ORDER BY id DESC LIMIT 1", append(args, docID)...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		switch id, ok := placeholderLocalID(deviceID, docID); {
		case ok:
			rows, err = store.Query(ctx, q, sel+" AND id = ?", append(args, id)...)
		case desc.Singleton:
			rows, err = store.Query(ctx, q, sel+" ORDER BY id DESC LIMIT 1", args...)
		}
		if err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	l := newLocalRecord(rows[0])
	return &l, nil
}

// applyRemote overwrites the fields present in dec and marks the record
// synced with the document's provenance. With a non-nil guard the update only
// lands if last_modified still holds the guarded value. It reports whether
// the row was updated.
func applyRemote(ctx context.Context, tx dbx.DBTX, desc *kinds.Descriptor, id int64, guard *string, dec decoded, doc remote.Document, userID string) (bool, error) {
	var (
		sets []string
		args []any
	)
	for _, f := range desc.Fields {
		v, ok := dec.values[f.Name]
		if !ok {
			continue
		}
		if v == nil {
			v = f.Zero()
		}
		sets = append(sets, f.Name+" = ?")
		args = append(args, v)
	}
	sets = append(sets, "cloud_id = ?", "sync_status = ?", "last_modified = ?", "last_modified_by = ?", "user_id = ?")
	args = append(args, doc.ID, string(models.StatusSynced), models.FormatTime(doc.LastModified), doc.LastModifiedBy, userID)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", desc.Table, strings.Join(sets, ", "))
	args = append(args, id)
	if guard != nil {
		stmt += " AND last_modified = ?"
		args = append(args, *guard)
	}

	res, err := store.Exec(ctx, tx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("update %s %d: %w", desc.Table, id, err)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if dec.hasChildren {
		if err := replaceChildren(ctx, tx, desc.Children, id, dec.children); err != nil {
			return false, err
		}
	}
	return true, nil
}

// insertRemote creates a synced local record from a document.
func insertRemote(ctx context.Context, tx dbx.DBTX, desc *kinds.Descriptor, dec decoded, doc remote.Document, userID string) (int64, error) {
	var (
		cols []string
		args []any
	)
	for _, f := range desc.Fields {
		v := dec.values[f.Name]
		if v == nil {
			v = f.Zero()
		}
		if v == nil {
			continue
		}
		cols = append(cols, f.Name)
		args = append(args, v)
	}
	cols = append(cols, "cloud_id", "sync_status", "last_modified", "last_modified_by", "user_id")
	args = append(args, doc.ID, string(models.StatusSynced), models.FormatTime(doc.LastModified), doc.LastModifiedBy, userID)

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", desc.Table, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := store.Exec(ctx, tx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s %s: %w", desc.Table, doc.ID, err)
	}
	if dec.hasChildren {
		if err := replaceChildren(ctx, tx, desc.Children, res.LastInsertID, dec.children); err != nil {
			return 0, err
		}
	}
	return res.LastInsertID, nil
}

func replaceChildren(ctx context.Context, tx dbx.DBTX, ch *kinds.Children, parentID int64, items []map[string]any) error {
	if _, err := store.Exec(ctx, tx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", ch.Table, ch.ForeignKey), parentID); err != nil {
		return fmt.Errorf("clear %s: %w", ch.Table, err)
	}
	for _, item := range items {
		cols := []string{ch.ForeignKey}
		args := []any{parentID}
		for _, f := range ch.Fields {
			if v, ok := item[f.Name]; ok && v != nil {
				cols = append(cols, f.Name)
				args = append(args, v)
			}
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", ch.Table, strings.Join(cols, ", "), placeholders(len(cols)))
		if _, err := store.Exec(ctx, tx, stmt, args...); err != nil {
			return fmt.Errorf("insert %s: %w", ch.Table, err)
		}
	}
	return nil
}

// markSynced records the acknowledged upload of a record. The cloud id and
// owner claim always land; the status only flips if the record was not edited
// since it was read, so a concurrent edit stays pending.
func markSynced(ctx context.Context, tx dbx.DBTX, desc *kinds.Descriptor, l localRecord, cloudID, userID string) (bool, error) {
	if _, err := store.Exec(ctx, tx,
		fmt.Sprintf("UPDATE %s SET cloud_id = ?, user_id = COALESCE(user_id, ?) WHERE id = ?", desc.Table),
		cloudID, userID, l.id); err != nil {
		return false, fmt.Errorf("claim %s %d: %w", desc.Table, l.id, err)
	}
	res, err := store.Exec(ctx, tx,
		fmt.Sprintf("UPDATE %s SET sync_status = ? WHERE id = ? AND last_modified = ?", desc.Table),
		string(models.StatusSynced), l.id, l.modified)
	if err != nil {
		return false, fmt.Errorf("mark %s %d synced: %w", desc.Table, l.id, err)
	}
	return res.RowsAffected > 0, nil
}

func deleteByCloudID(ctx context.Context, tx dbx.DBTX, desc *kinds.Descriptor, userID, cloudID string) (int64, error) {
	where, args := repoutil.Owner(userID)
	res, err := store.Exec(ctx, tx,
		fmt.Sprintf("DELETE FROM %s WHERE cloud_id = ? AND %s", desc.Table, where),
		append([]any{cloudID}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("delete %s %s: %w", desc.Table, cloudID, err)
	}
	return res.RowsAffected, nil
}

func pendingCount(ctx context.Context, q dbx.DBTX, desc *kinds.Descriptor, userID string) (int, error) {
	where, args := repoutil.Owner(userID)
	rows, err := store.Query(ctx, q,
		fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE sync_status = ? AND %s", desc.Table, where),
		append([]any{string(models.StatusPending)}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("count pending %s: %w", desc.Table, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(rows[0].Int64("n")), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
