package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yalla-nemshi/nemshi/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "state.db")); os.IsNotExist(err) {
		t.Error("state.db should exist")
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := db.Set(ctx, "users/u1", map[string]any{"displayName": "Lina"}, false); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	db.Close()

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("re-Open() error: %v", err)
	}
	defer db2.Close()

	doc, err := db2.Get(ctx, "users/u1")
	if err != nil || doc == nil {
		t.Fatalf("Get() after reopen = %v, %v", doc, err)
	}
	if doc.Data.String("displayName") != "Lina" {
		t.Errorf("displayName = %q, want Lina", doc.Data.String("displayName"))
	}
}

// ─── Documents ──────────────────────────────────────────────────────────────

func TestGet_Missing(t *testing.T) {
	db := newTestDB(t)
	doc, err := db.Get(context.Background(), "users/nobody")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if doc != nil {
		t.Errorf("Get() = %+v, want nil", doc)
	}
}

func TestGet_InvalidPath(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Get(context.Background(), "users")
	if !errors.Is(err, domain.ErrInvalidPath) {
		t.Errorf("err = %v, want ErrInvalidPath", err)
	}
}

func TestSet_Replace(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_ = db.Set(ctx, "users/u1", map[string]any{"a": 1, "b": "x"}, false)
	_ = db.Set(ctx, "users/u1", map[string]any{"a": 2}, false)

	doc, _ := db.Get(ctx, "users/u1")
	if _, ok := doc.Data["b"]; ok {
		t.Error("replace should drop field b")
	}
	if n, _ := doc.Data.Number("a"); n != 2 {
		t.Errorf("a = %v, want 2", n)
	}
}

func TestSet_MergeKeepsUntouchedFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_ = db.Set(ctx, "users/u1", map[string]any{
		"a":      1,
		"b":      "keep",
		"nested": map[string]any{"x": 1, "y": 2},
	}, false)
	_ = db.Set(ctx, "users/u1", map[string]any{
		"a":      5,
		"nested": map[string]any{"y": 3},
	}, true)

	doc, _ := db.Get(ctx, "users/u1")
	if doc.Data.String("b") != "keep" {
		t.Errorf("b = %q, want keep", doc.Data.String("b"))
	}
	if n, _ := doc.Data.Number("a"); n != 5 {
		t.Errorf("a = %v, want 5", n)
	}
	nested, _ := doc.Data["nested"].(map[string]any)
	if nested["x"] != float64(1) || nested["y"] != float64(3) {
		t.Errorf("nested = %v, want x=1 y=3", nested)
	}
}

func TestSet_TimeRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589000000, time.UTC)

	_ = db.Set(ctx, "walks/w1", map[string]any{"dateTime": ts}, false)
	doc, _ := db.Get(ctx, "walks/w1")

	got := doc.Data.Time("dateTime")
	if got == nil || !got.Equal(ts) {
		t.Errorf("dateTime = %v, want %v", got, ts)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_ = db.Set(ctx, "users/u1", map[string]any{"a": 1}, false)
	if err := db.Delete(ctx, "users/u1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := db.Delete(ctx, "users/u1"); err != nil {
		t.Fatalf("second Delete() error: %v", err)
	}
	doc, _ := db.Get(ctx, "users/u1")
	if doc != nil {
		t.Error("document should be gone")
	}
}

// ─── Queries ────────────────────────────────────────────────────────────────

func TestQuery_OrderByFieldDescWithOffset(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		path := fmt.Sprintf("friend_profiles/u1/walk_summaries/w%02d", i)
		_ = db.Set(ctx, path, map[string]any{"updatedAt": base.Add(time.Duration(i) * time.Minute)}, false)
	}

	docs, err := db.Query(ctx, domain.Query{
		Collection: "friend_profiles/u1/walk_summaries",
		OrderBy:    "updatedAt",
		Direction:  domain.Desc,
		Offset:     7,
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d docs, want 3", len(docs))
	}
	want := []string{"w02", "w01", "w00"}
	for i, d := range docs {
		if d.ID != want[i] {
			t.Errorf("docs[%d] = %s, want %s", i, d.ID, want[i])
		}
	}
}

func TestQuery_CollectionGroupWithFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_ = db.Set(ctx, "users/a/walks/w1", map[string]any{"walkId": "w1", "status": "actively_walking"}, false)
	_ = db.Set(ctx, "users/b/walks/w1", map[string]any{"walkId": "w1", "status": "joined"}, false)
	_ = db.Set(ctx, "users/c/walks/w1", map[string]any{"walkId": "w1", "status": "actively_walking"}, false)
	_ = db.Set(ctx, "users/c/walks/w2", map[string]any{"walkId": "w2", "status": "actively_walking"}, false)
	_ = db.Set(ctx, "walks/w1", map[string]any{"status": "completed"}, false)

	docs, err := db.Query(ctx, domain.Query{
		Collection: "walks",
		Group:      true,
		Where: []domain.Filter{
			{Field: "walkId", Value: "w1"},
			{Field: "status", Value: "actively_walking"},
		},
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].Path != "users/a/walks/w1" || docs[1].Path != "users/c/walks/w1" {
		t.Errorf("paths = %s, %s", docs[0].Path, docs[1].Path)
	}
}

func TestQuery_BoolFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_ = db.Set(ctx, "users/u1/badges/a", map[string]any{"achieved": true}, false)
	_ = db.Set(ctx, "users/u1/badges/b", map[string]any{"achieved": false}, false)

	docs, err := db.Query(ctx, domain.Query{
		Collection: "users/u1/badges",
		Where:      []domain.Filter{{Field: "achieved", Value: true}},
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a" {
		t.Errorf("docs = %+v, want only a", docs)
	}
}

func TestQuery_StartAfterPages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = db.Set(ctx, fmt.Sprintf("users/u%d", i), map[string]any{"n": i}, false)
	}

	var seen []string
	last := ""
	for {
		page, err := db.Query(ctx, domain.Query{Collection: "users", Limit: 2, StartAfter: last})
		if err != nil {
			t.Fatalf("Query() error: %v", err)
		}
		for _, d := range page {
			seen = append(seen, d.ID)
		}
		if len(page) < 2 {
			break
		}
		last = page[len(page)-1].ID
	}
	if len(seen) != 5 {
		t.Errorf("paged %d docs, want 5: %v", len(seen), seen)
	}
}

func TestQuery_RejectsBadField(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Query(context.Background(), domain.Query{
		Collection: "users",
		OrderBy:    "x'); DROP TABLE documents; --",
	})
	if !errors.Is(err, domain.ErrInvalidField) {
		t.Errorf("err = %v, want ErrInvalidField", err)
	}
}

// ─── Batches ────────────────────────────────────────────────────────────────

func TestBatch_CommitAll(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = db.Set(ctx, "users/u1/badges/old", map[string]any{"a": 1}, false)

	b := db.Batch()
	b.Set("users/u1/badges/x", map[string]any{"progress": 0.5}, true)
	b.Set("users/u1/badges/y", map[string]any{"progress": 1}, true)
	b.Delete("users/u1/badges/old")
	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	n, _ := db.DocumentCount(ctx, "users/u1/badges")
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestBatch_AllOrNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := db.Batch()
	b.Set("users/u1/badges/x", map[string]any{"progress": 0.5}, false)
	b.Set("users/u1/badges", map[string]any{"bad": true}, false) // collection path, invalid
	if err := b.Commit(ctx); err == nil {
		t.Fatal("Commit() should fail on invalid path")
	}

	doc, _ := db.Get(ctx, "users/u1/badges/x")
	if doc != nil {
		t.Error("first write should have been rolled back")
	}
}

func TestBatch_EmptyCommit(t *testing.T) {
	db := newTestDB(t)
	if err := db.Batch().Commit(context.Background()); err != nil {
		t.Errorf("empty Commit() error: %v", err)
	}
}
