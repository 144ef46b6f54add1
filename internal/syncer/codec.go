package syncer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/billsync/internal/dbx"
	"github.com/dmitrijs2005/billsync/internal/kinds"
	"github.com/dmitrijs2005/billsync/internal/store"
)

const placeholderPrefix = "local_"

// placeholderID is the document id a record is first uploaded under. It is
// scoped by device so that small local ids of different devices never meet.
func placeholderID(deviceID string, localID int64) string {
	return fmt.Sprintf("%s%s_%d", placeholderPrefix, deviceID, localID)
}

// placeholderLocalID extracts the local id from a placeholder of deviceID.
func placeholderLocalID(deviceID, docID string) (int64, bool) {
	rest, ok := strings.CutPrefix(docID, placeholderPrefix+deviceID+"_")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// codec translates between local rows and document data for one kind.
// Reference fields are exchanged as cloud ids because local ids are
// meaningless on other devices.
type codec struct {
	desc     *kinds.Descriptor
	deviceID string
}

// decoded is document data in local column form. Only keys present in the
// document are set.
type decoded struct {
	values map[string]any
	// hasChildren is false when the document carries no child list; the
	// local children are then left untouched.
	hasChildren bool
	children    []map[string]any
}

func (c codec) encode(ctx context.Context, q dbx.DBTX, row store.Row) (map[string]any, error) {
	data, err := c.encodeFields(ctx, q, c.desc.Fields, row)
	if err != nil {
		return nil, err
	}

	ch := c.desc.Children
	if ch == nil {
		return data, nil
	}

	rows, err := store.Query(ctx, q,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY id", columnList(ch.Fields), ch.Table, ch.ForeignKey),
		row.Int64("id"))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ch.Table, err)
	}
	items := make([]any, 0, len(rows))
	for _, r := range rows {
		item, err := c.encodeFields(ctx, q, ch.Fields, r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	data[ch.Key] = items
	return data, nil
}

func (c codec) encodeFields(ctx context.Context, q dbx.DBTX, fields []kinds.Field, row store.Row) (map[string]any, error) {
	data := make(map[string]any, len(fields))
	for _, f := range fields {
		v, err := kinds.Normalize(f, row[f.Name])
		if err != nil {
			return nil, err
		}
		data[f.Name] = v

		if f.Ref == "" {
			continue
		}
		ref, err := c.cloudRef(ctx, q, f.Ref, v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		data[f.RefKey()] = ref
	}
	return data, nil
}

// cloudRef returns the document id of local record id in collection: its
// cloud id, or its placeholder while it has none. nil when there is no such
// record.
func (c codec) cloudRef(ctx context.Context, q dbx.DBTX, collection string, id any) (any, error) {
	n, ok := id.(int64)
	if !ok {
		return nil, nil
	}
	desc, err := kinds.Lookup(collection)
	if err != nil {
		return nil, err
	}
	rows, err := store.Query(ctx, q, "SELECT cloud_id FROM "+desc.Table+" WHERE id = ?", n)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if cid := rows[0].String("cloud_id"); cid != "" {
		return cid, nil
	}
	return placeholderID(c.deviceID, n), nil
}

func (c codec) decode(ctx context.Context, q dbx.DBTX, data map[string]any) (decoded, error) {
	values, err := c.decodeFields(ctx, q, c.desc.Fields, data)
	if err != nil {
		return decoded{}, err
	}
	out := decoded{values: values}

	ch := c.desc.Children
	if ch == nil {
		return out, nil
	}
	raw, ok := data[ch.Key]
	if !ok {
		return out, nil
	}
	list, err := asList(raw)
	if err != nil {
		return decoded{}, fmt.Errorf("%s: %w", ch.Key, err)
	}
	out.hasChildren = true
	for i, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			return decoded{}, fmt.Errorf("%s[%d]: unexpected %T", ch.Key, i, e)
		}
		item, err := c.decodeFields(ctx, q, ch.Fields, m)
		if err != nil {
			return decoded{}, fmt.Errorf("%s[%d]: %w", ch.Key, i, err)
		}
		out.children = append(out.children, item)
	}
	return out, nil
}

func (c codec) decodeFields(ctx context.Context, q dbx.DBTX, fields []kinds.Field, data map[string]any) (map[string]any, error) {
	out, err := kinds.NormalizeAll(fields, data)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if f.Ref == "" {
			continue
		}
		ref, ok := data[f.RefKey()]
		if !ok {
			// a bare id from another device points at nothing here
			delete(out, f.Name)
			continue
		}
		id, err := c.localRef(ctx, q, f.Ref, ref)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[f.Name] = id
	}
	return out, nil
}

// localRef resolves a document id in collection to the local record id, or
// nil when the record is not known locally.
func (c codec) localRef(ctx context.Context, q dbx.DBTX, collection string, ref any) (any, error) {
	cid, ok := ref.(string)
	if !ok || cid == "" {
		return nil, nil
	}
	desc, err := kinds.Lookup(collection)
	if err != nil {
		return nil, err
	}

	rows, err := store.Query(ctx, q, "SELECT id FROM "+desc.Table+" WHERE cloud_id = ? ORDER BY id LIMIT 1", cid)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return rows[0].Int64("id"), nil
	}

	if n, ok := placeholderLocalID(c.deviceID, cid); ok {
		rows, err := store.Query(ctx, q, "SELECT id FROM "+desc.Table+" WHERE id = ?", n)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			return n, nil
		}
	}
	return nil, nil
}

func asList(v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			out[i] = m
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}

func columnList(fields []kinds.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}
