package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/billsync/internal/logging"
	"github.com/dmitrijs2005/billsync/internal/remote"
	"github.com/jackc/pgx/v5"
)

const (
	selectDoc = `SELECT local_id, data, last_modified, last_modified_by FROM documents WHERE user_id=$1 AND collection=$2 AND doc_id=$3`

	selectDocs = `SELECT doc_id, local_id, data, last_modified, last_modified_by FROM documents WHERE user_id=$1 AND collection=$2`

	upsertMerge = `INSERT INTO documents (user_id, collection, doc_id, local_id, data, last_modified_by)
VALUES ($1, $2, $3, $4, $5::jsonb, $6)
ON CONFLICT (user_id, collection, doc_id) DO UPDATE SET
	local_id = EXCLUDED.local_id,
	data = documents.data || EXCLUDED.data,
	last_modified = now(),
	last_modified_by = EXCLUDED.last_modified_by`

	upsertSet = `INSERT INTO documents (user_id, collection, doc_id, local_id, data, last_modified_by)
VALUES ($1, $2, $3, $4, $5::jsonb, $6)
ON CONFLICT (user_id, collection, doc_id) DO UPDATE SET
	local_id = EXCLUDED.local_id,
	data = EXCLUDED.data,
	last_modified = now(),
	last_modified_by = EXCLUDED.last_modified_by`

	deleteDoc = `DELETE FROM documents WHERE user_id=$1 AND collection=$2 AND doc_id=$3`
)

type Store struct {
	db       *DB
	listener Listener
	log      logging.Logger
}

var _ remote.DocumentStore = (*Store)(nil)

// NewStore builds a store on db. listener may be nil, in which case
// Subscribe fails.
func NewStore(db *DB, listener Listener, log logging.Logger) *Store {
	return &Store{db: db, listener: listener, log: log.With("component", "pgstore")}
}

func (s *Store) Close() { s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Pool.Ping(ctx)
}

func (s *Store) Get(ctx context.Context, ref remote.Ref) (*remote.Document, error) {
	var (
		d    = remote.Document{ID: ref.ID}
		data []byte
	)
	err := s.db.Pool.QueryRow(ctx, selectDoc, ref.UserID, ref.Name, ref.ID).
		Scan(&d.LocalID, &data, &d.LastModified, &d.LastModifiedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref.Path(), err)
	}
	if d.Data, err = decodeData(data); err != nil {
		return nil, fmt.Errorf("get %s: %w", ref.Path(), err)
	}
	d.LastModified = d.LastModified.UTC()
	return &d, nil
}

func (s *Store) Query(ctx context.Context, col remote.CollectionRef, filters ...remote.Filter) ([]remote.Document, error) {
	q, args := buildQuery(col, filters)

	rows, err := s.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", col.Path(), err)
	}
	defer rows.Close()

	var out []remote.Document
	for rows.Next() {
		var (
			d    remote.Document
			data []byte
		)
		if err := rows.Scan(&d.ID, &d.LocalID, &data, &d.LastModified, &d.LastModifiedBy); err != nil {
			return nil, fmt.Errorf("scan %s: %w", col.Path(), err)
		}
		if d.Data, err = decodeData(data); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", col.Path(), d.ID, err)
		}
		d.LastModified = d.LastModified.UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", col.Path(), err)
	}
	return out, nil
}

func buildQuery(col remote.CollectionRef, filters []remote.Filter) (string, []any) {
	var b strings.Builder
	b.WriteString(selectDocs)
	args := []any{col.UserID, col.Name}
	for _, f := range filters {
		n := len(args)
		fmt.Fprintf(&b, " AND data->>$%d = $%d", n+1, n+2)
		args = append(args, f.Field, fmt.Sprint(f.Value))
	}
	b.WriteString(" ORDER BY last_modified DESC, doc_id")
	return b.String(), args
}

func (s *Store) SetMerged(ctx context.Context, ref remote.Ref, doc remote.Document) error {
	if err := remote.Validate([]remote.Write{{Ref: ref, Op: remote.OpMerge}}); err != nil {
		return err
	}
	data, err := encodeData(doc.Data)
	if err != nil {
		return fmt.Errorf("set %s: %w", ref.Path(), err)
	}
	if _, err := s.db.Pool.Exec(ctx, upsertMerge, ref.UserID, ref.Name, ref.ID, doc.LocalID, data, doc.LastModifiedBy); err != nil {
		return fmt.Errorf("set %s: %w", ref.Path(), err)
	}
	return nil
}

// BatchWrite applies writes in one transaction. Every written document gets
// the transaction's timestamp.
func (s *Store) BatchWrite(ctx context.Context, writes []remote.Write) (err error) {
	if err := remote.Validate(writes); err != nil {
		return err
	}

	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("commit batch: %w", e)
		}
	}()

	for i, w := range writes {
		if err = execWrite(ctx, tx, w); err != nil {
			return fmt.Errorf("write %d (%s %s): %w", i, w.Op, w.Ref.Path(), err)
		}
	}
	return nil
}

func execWrite(ctx context.Context, tx pgx.Tx, w remote.Write) error {
	r := w.Ref
	switch w.Op {
	case remote.OpDelete:
		_, err := tx.Exec(ctx, deleteDoc, r.UserID, r.Name, r.ID)
		return err
	case remote.OpSet, remote.OpMerge:
		data, err := encodeData(w.Doc.Data)
		if err != nil {
			return err
		}
		q := upsertSet
		if w.Op == remote.OpMerge {
			q = upsertMerge
		}
		_, err = tx.Exec(ctx, q, r.UserID, r.Name, r.ID, w.Doc.LocalID, data, w.Doc.LastModifiedBy)
		return err
	default:
		return fmt.Errorf("unsupported write op %s", w.Op)
	}
}

func encodeData(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeData(b []byte) (map[string]any, error) {
	m := map[string]any{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
