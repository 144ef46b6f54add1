package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/billsync/internal/common"
	"github.com/dmitrijs2005/billsync/internal/connectivity"
	"github.com/dmitrijs2005/billsync/internal/dbx"
	"github.com/dmitrijs2005/billsync/internal/kinds"
	"github.com/dmitrijs2005/billsync/internal/logging"
	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/dmitrijs2005/billsync/internal/remote"
	"github.com/dmitrijs2005/billsync/internal/repositories/syncmeta"
	"github.com/dmitrijs2005/billsync/internal/repositories/tombstones"
	"github.com/dmitrijs2005/billsync/internal/store"
)

// Deps are the collaborators shared by the sync components.
type Deps struct {
	Local  *store.DB
	Remote remote.DocumentStore
	Users  UserSource
	Conn   connectivity.Source
	Device DeviceSource
	// Now defaults to the UTC wall clock.
	Now func() time.Time
	Log logging.Logger
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return utcNow()
}

// CollectionSyncer reconciles one record kind, described by a
// kinds.Descriptor.
type CollectionSyncer struct {
	desc *kinds.Descriptor
	deps Deps
	log  logging.Logger
}

var _ Syncer = (*CollectionSyncer)(nil)

func NewCollectionSyncer(desc *kinds.Descriptor, deps Deps) *CollectionSyncer {
	return &CollectionSyncer{
		desc: desc,
		deps: deps,
		log:  deps.Log.With("component", "syncer", "collection", desc.Collection),
	}
}

// NewCollectionSyncers builds one syncer per kind, in sync order.
func NewCollectionSyncers(deps Deps) []Syncer {
	all := kinds.All()
	out := make([]Syncer, len(all))
	for i, d := range all {
		out[i] = NewCollectionSyncer(d, deps)
	}
	return out
}

func (s *CollectionSyncer) Collection() string { return s.desc.Collection }

// Sync runs one pass. It does not touch the remote store when offline or
// signed out.
func (s *CollectionSyncer) Sync(ctx context.Context) (res Result) {
	res.Collection = s.desc.Collection

	if !s.deps.Conn.Online() {
		res.Err = common.ErrOffline
		return res
	}
	userID, ok := s.deps.Users.CurrentUser()
	if !ok {
		res.Err = common.ErrUnauthenticated
		return res
	}

	defer func() {
		if p := recover(); p != nil {
			res = Result{Collection: s.desc.Collection, Err: fmt.Errorf("sync %s: panic: %v", s.desc.Collection, p)}
		}
		s.record(ctx, userID, res)
	}()

	deviceID, err := s.deps.Device.DeviceID(ctx)
	if err != nil {
		res.Err = fmt.Errorf("sync %s: %w", s.desc.Collection, err)
		return res
	}

	if err := s.pass(ctx, userID, deviceID, &res); err != nil {
		res.Err = fmt.Errorf("sync %s: %w", s.desc.Collection, err)
	}
	return res
}

// mark is a local "synced" write held back until the remote batch commits.
type mark struct {
	local   localRecord
	cloudID string
}

func (s *CollectionSyncer) pass(ctx context.Context, userID, deviceID string, res *Result) error {
	var (
		db  = s.deps.Local.SQL()
		col = remote.CollectionRef{UserID: userID, Name: s.desc.Collection}
		c   = codec{desc: s.desc, deviceID: deviceID}
	)

	graves, err := tombstones.NewSQLiteRepository(db).List(ctx, s.desc.Collection, userID)
	if err != nil {
		return err
	}
	buried := make(map[string]bool, len(graves))
	writes := make([]remote.Write, 0, len(graves))
	for _, g := range graves {
		buried[g.CloudID] = true
		writes = append(writes, remote.Write{Ref: col.Doc(g.CloudID), Op: remote.OpDelete})
	}

	locals, err := loadLocal(ctx, db, s.desc, userID)
	if err != nil {
		return err
	}
	if s.desc.Singleton && len(locals) > 1 {
		var keep localRecord
		err := s.deps.Local.Tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			var err error
			keep, err = collapseSingleton(ctx, tx, s.desc, locals)
			return err
		})
		if err != nil {
			return err
		}
		s.log.Info(ctx, "collapsed duplicate singleton rows", "kept", keep.id, "dropped", len(locals)-1)
		locals = []localRecord{keep}
	}

	docs, err := s.fetch(ctx, col)
	if err != nil {
		return err
	}
	live := docs[:0]
	for _, d := range docs {
		if !buried[d.ID] {
			live = append(live, d)
		}
	}
	docs = live

	byID := make(map[string]remote.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	// remote documents that already have a local counterpart
	known := make(map[string]bool, len(locals)*2)
	for _, l := range locals {
		if l.cloudID != "" {
			known[l.cloudID] = true
		}
		known[placeholderID(deviceID, l.id)] = true
	}

	var (
		matched    = make(map[string]bool)
		overwrites []matchPair
		marks      []mark
		uploads    int
	)
	for _, l := range locals {
		if l.status == models.StatusSynced && l.cloudID != "" {
			continue
		}

		if doc, ok := s.match(l, byID, docs, matched, deviceID); ok {
			matched[doc.ID] = true
			winner := Resolve(l.modifiedAt(), doc.LastModified)
			s.log.Debug(ctx, "resolved conflict", "id", l.id, "doc_id", doc.ID, "winner", winner)
			if winner == RemoteWins {
				overwrites = append(overwrites, matchPair{local: l, doc: doc})
				continue
			}
			w, err := s.upload(ctx, db, c, col.Doc(doc.ID), remote.OpMerge, l, deviceID)
			if err != nil {
				return err
			}
			writes = append(writes, w)
			marks = append(marks, mark{local: l, cloudID: doc.ID})
			uploads++
			continue
		}

		key := l.cloudID
		switch {
		case s.desc.Singleton:
			key = kinds.SingletonDocID
		case key == "":
			key = placeholderID(deviceID, l.id)
		}
		w, err := s.upload(ctx, db, c, col.Doc(key), remote.OpSet, l, deviceID)
		if err != nil {
			return err
		}
		writes = append(writes, w)
		marks = append(marks, mark{local: l, cloudID: key})
		uploads++
	}

	var downloads []remote.Document
	for _, d := range docs {
		if matched[d.ID] || known[d.ID] {
			continue
		}
		if s.desc.Singleton && len(locals) > 0 {
			continue
		}
		downloads = append(downloads, d)
	}

	if len(overwrites) > 0 || len(downloads) > 0 {
		var updated, downloaded, skipped int
		err := s.deps.Local.Tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			for _, o := range overwrites {
				var ok bool
				err := withSavepoint(ctx, tx, func() error {
					dec, err := c.decode(ctx, tx, o.doc.Data)
					if err != nil {
						return fmt.Errorf("decode: %w", err)
					}
					ok, err = applyRemote(ctx, tx, s.desc, o.local.id, &o.local.modified, dec, o.doc, userID)
					return err
				})
				switch {
				case errors.Is(err, errSavepoint):
					return err
				case err != nil:
					s.log.Warn(ctx, "skipped remote document", "doc_id", o.doc.ID, "error", err)
					skipped++
				case ok:
					updated++
				}
			}
			for _, d := range downloads {
				err := withSavepoint(ctx, tx, func() error {
					dec, err := c.decode(ctx, tx, d.Data)
					if err != nil {
						return fmt.Errorf("decode: %w", err)
					}
					_, err = insertRemote(ctx, tx, s.desc, dec, d, userID)
					return err
				})
				switch {
				case errors.Is(err, errSavepoint):
					return err
				case err != nil:
					s.log.Warn(ctx, "skipped remote document", "doc_id", d.ID, "error", err)
					skipped++
				default:
					downloaded++
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("apply remote changes: %w", err)
		}
		res.Skipped = skipped
		res.Updated, res.Downloaded = updated, downloaded
	}

	if len(writes) == 0 {
		return nil
	}
	if err := s.deps.Remote.BatchWrite(ctx, writes); err != nil {
		return fmt.Errorf("batch write: %w", err)
	}
	res.Uploaded, res.Deleted = uploads, len(graves)

	err = s.deps.Local.Tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, m := range marks {
			ok, err := markSynced(ctx, tx, s.desc, m.local, m.cloudID, userID)
			if err != nil {
				return err
			}
			if !ok {
				s.log.Debug(ctx, "record edited during pass, left pending", "id", m.local.id)
			}
		}
		repo := tombstones.NewSQLiteRepository(tx)
		for _, g := range graves {
			if err := repo.Remove(ctx, g.Collection, g.CloudID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("acknowledge upload: %w", err)
	}
	return nil
}

var errSavepoint = errors.New("savepoint")

// withSavepoint runs fn inside a savepoint of tx and rolls back to it when fn
// fails, so one bad document leaves the rest of the transaction intact.
// Failures of the savepoint statements themselves wrap errSavepoint.
func withSavepoint(ctx context.Context, tx dbx.DBTX, fn func() error) error {
	if _, err := store.Exec(ctx, tx, "SAVEPOINT remote_doc"); err != nil {
		return fmt.Errorf("%w: %v", errSavepoint, err)
	}
	if err := fn(); err != nil {
		if _, rerr := store.Exec(ctx, tx, "ROLLBACK TO remote_doc"); rerr != nil {
			return fmt.Errorf("%w: %v", errSavepoint, rerr)
		}
		if _, rerr := store.Exec(ctx, tx, "RELEASE remote_doc"); rerr != nil {
			return fmt.Errorf("%w: %v", errSavepoint, rerr)
		}
		return err
	}
	if _, err := store.Exec(ctx, tx, "RELEASE remote_doc"); err != nil {
		return fmt.Errorf("%w: %v", errSavepoint, err)
	}
	return nil
}

type matchPair struct {
	local localRecord
	doc   remote.Document
}

func (s *CollectionSyncer) fetch(ctx context.Context, col remote.CollectionRef) ([]remote.Document, error) {
	if !s.desc.Singleton {
		docs, err := s.deps.Remote.Query(ctx, col)
		if err != nil {
			return nil, fmt.Errorf("query remote: %w", err)
		}
		return docs, nil
	}
	d, err := s.deps.Remote.Get(ctx, col.Doc(kinds.SingletonDocID))
	if err != nil {
		return nil, fmt.Errorf("get remote: %w", err)
	}
	if d == nil {
		return nil, nil
	}
	return []remote.Document{*d}, nil
}

// match finds the remote document of a local record: by cloud id, by this
// device's placeholder, then by the local id embedded in a document this
// device wrote. A document matches at most one record.
func (s *CollectionSyncer) match(l localRecord, byID map[string]remote.Document, docs []remote.Document, matched map[string]bool, deviceID string) (remote.Document, bool) {
	if s.desc.Singleton {
		d, ok := byID[kinds.SingletonDocID]
		return d, ok && !matched[d.ID]
	}
	if l.cloudID != "" {
		if d, ok := byID[l.cloudID]; ok && !matched[d.ID] {
			return d, true
		}
	}
	if d, ok := byID[placeholderID(deviceID, l.id)]; ok && !matched[d.ID] {
		return d, true
	}
	for _, d := range docs {
		if !matched[d.ID] && d.LastModifiedBy == deviceID && d.LocalID == l.id {
			return d, true
		}
	}
	return remote.Document{}, false
}

func (s *CollectionSyncer) upload(ctx context.Context, q dbx.DBTX, c codec, ref remote.Ref, op remote.WriteOp, l localRecord, deviceID string) (remote.Write, error) {
	data, err := c.encode(ctx, q, l.row)
	if err != nil {
		return remote.Write{}, fmt.Errorf("encode %d: %w", l.id, err)
	}
	return remote.Write{
		Ref: ref,
		Op:  op,
		Doc: remote.Document{
			LocalID:        l.id,
			Data:           data,
			LastModified:   l.modifiedAt(),
			LastModifiedBy: deviceID,
		},
	}, nil
}

// record writes the pass outcome to sync_metadata. A failed pass keeps the
// time of the last good one.
func (s *CollectionSyncer) record(ctx context.Context, userID string, res Result) {
	db := s.deps.Local.SQL()
	m := models.SyncMetadata{Collection: s.desc.Collection, Status: models.MetaStatusSynced}
	if res.Err != nil {
		m.Status = models.MetaStatusError
		s.log.Warn(ctx, "sync pass failed", "error", res.Err)
	} else {
		m.LastSyncTime = s.deps.now()
		s.log.Info(ctx, "sync pass finished",
			"uploaded", res.Uploaded, "downloaded", res.Downloaded, "updated", res.Updated, "deleted", res.Deleted, "skipped", res.Skipped)
	}

	n, err := pendingCount(ctx, db, s.desc, userID)
	if err != nil {
		s.log.Warn(ctx, "failed to count pending records", "error", err)
	}
	m.PendingCount = n

	if err := syncmeta.NewSQLiteRepository(db).Upsert(ctx, m); err != nil {
		s.log.Warn(ctx, "failed to record sync metadata", "error", err)
	}
}
