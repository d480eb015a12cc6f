package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/yalla-nemshi/nemshi/internal/domain"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ─── Document Repository ────────────────────────────────────────────────────

// Get reads one document. Returns (nil, nil) if it does not exist.
func (d *DB) Get(ctx context.Context, path string) (*domain.Document, error) {
	_, id, err := domain.SplitDocPath(path)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", path, err)
	}
	data, err := readData(ctx, d.db, path)
	if err != nil || data == nil {
		return nil, err
	}
	return &domain.Document{Path: strings.Trim(path, "/"), ID: id, Data: data}, nil
}

// Set writes a document, merging into the stored one when merge is true.
func (d *DB) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		return writeDoc(ctx, tx, path, data, merge)
	})
}

// Delete removes a document. Missing documents are ignored.
func (d *DB) Delete(ctx context.Context, path string) error {
	if _, _, err := domain.SplitDocPath(path); err != nil {
		return fmt.Errorf("delete %q: %w", path, err)
	}
	_, err := d.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, strings.Trim(path, "/"))
	return err
}

// Query lists documents matching q.
func (d *DB) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	var (
		where []string
		args  []any
	)
	if q.Group {
		where = append(where, "coll_id = ?")
	} else {
		where = append(where, "collection = ?")
	}
	args = append(args, strings.Trim(q.Collection, "/"))

	for _, f := range q.Where {
		if !fieldPattern.MatchString(f.Field) {
			return nil, fmt.Errorf("filter %q: %w", f.Field, domain.ErrInvalidField)
		}
		where = append(where, "json_extract(data, ?) = ?")
		args = append(args, "$."+f.Field, filterValue(f.Value))
	}

	dir := "ASC"
	cmp := ">"
	if q.Direction == domain.Desc {
		dir = "DESC"
		cmp = "<"
	}

	var order string
	if q.OrderBy == "" {
		order = "doc_id " + dir
		if q.StartAfter != "" {
			where = append(where, "doc_id "+cmp+" ?")
			args = append(args, q.StartAfter)
		}
	} else {
		if !fieldPattern.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("order by %q: %w", q.OrderBy, domain.ErrInvalidField)
		}
		if q.StartAfter != "" {
			return nil, fmt.Errorf("start-after requires document id ordering: %w", domain.ErrInvalidField)
		}
		order = fmt.Sprintf("json_extract(data, '$.%s') %s, doc_id %s", q.OrderBy, dir, dir)
	}

	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	args = append(args, limit, q.Offset)

	query := fmt.Sprintf(
		`SELECT path, doc_id, data FROM documents WHERE %s ORDER BY %s LIMIT ? OFFSET ?`,
		strings.Join(where, " AND "), order,
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var (
			doc domain.Document
			raw string
		)
		if err := rows.Scan(&doc.Path, &doc.ID, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &doc.Data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", doc.Path, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ─── Batches ────────────────────────────────────────────────────────────────

type batchOp struct {
	path   string
	data   map[string]any
	merge  bool
	delete bool
}

// Batch collects writes applied in a single transaction.
type Batch struct {
	db  *DB
	ops []batchOp
}

// Batch starts an atomic multi-document write.
func (d *DB) Batch() domain.WriteBatch {
	return &Batch{db: d}
}

func (b *Batch) Set(path string, data map[string]any, merge bool) {
	b.ops = append(b.ops, batchOp{path: path, data: data, merge: merge})
}

func (b *Batch) Delete(path string) {
	b.ops = append(b.ops, batchOp{path: path, delete: true})
}

func (b *Batch) Len() int { return len(b.ops) }

// Commit applies every write or none of them.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	return b.db.inTx(ctx, func(tx *sql.Tx) error {
		for _, op := range b.ops {
			if op.delete {
				if _, _, err := domain.SplitDocPath(op.path); err != nil {
					return fmt.Errorf("delete %q: %w", op.path, err)
				}
				if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, strings.Trim(op.path, "/")); err != nil {
					return err
				}
				continue
			}
			if err := writeDoc(ctx, tx, op.path, op.data, op.merge); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (d *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func readData(ctx context.Context, ex execer, path string) (domain.Fields, error) {
	var raw string
	err := ex.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE path = ?`, strings.Trim(path, "/"),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, err
	}
	var data domain.Fields
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if data == nil {
		data = domain.Fields{}
	}
	return data, nil
}

func writeDoc(ctx context.Context, ex execer, path string, data map[string]any, merge bool) error {
	collection, id, err := domain.SplitDocPath(path)
	if err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}
	path = strings.Trim(path, "/")

	doc, _ := normalize(map[string]any(data)).(map[string]any)
	if doc == nil {
		doc = map[string]any{}
	}
	if merge {
		existing, err := readData(ctx, ex, path)
		if err != nil {
			return err
		}
		if existing != nil {
			doc = mergeMaps(existing, doc)
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO documents (path, collection, coll_id, doc_id, data, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			data=excluded.data,
			updated_at=excluded.updated_at`,
		path, collection, domain.CollectionID(collection), id, string(raw), time.Now().UnixNano(),
	)
	return err
}

// mergeMaps merges src into dst recursively, like a Firestore merge-all set.
func mergeMaps(dst, src map[string]any) map[string]any {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if cur, ok := dst[k].(map[string]any); ok {
				dst[k] = mergeMaps(cur, sub)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

// normalize rewrites values into JSON-friendly forms: timestamps become
// fixed-width UTC strings and nested Fields become plain maps.
func normalize(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(timeLayout)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(timeLayout)
	case domain.Fields:
		return normalize(map[string]any(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}

// filterValue converts a filter operand to what json_extract returns.
func filterValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case time.Time, *time.Time:
		return normalize(x)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}
