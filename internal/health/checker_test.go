package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yalla-nemshi/nemshi/internal/domain"
	"github.com/yalla-nemshi/nemshi/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// getOnly hides Ping so the checker falls back to a probe read.
type getOnly struct{ domain.DocumentStore }

type failingStore struct{ domain.DocumentStore }

func (failingStore) Get(context.Context, string) (*domain.Document, error) {
	return nil, errors.New("unavailable")
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker(t *testing.T) {
	c := NewChecker(newTestDB(t), 0)
	if c == nil {
		t.Fatal("NewChecker() returned nil")
	}
	if len(c.checks) != 1 {
		t.Errorf("checks = %d, want 1", len(c.checks))
	}
	if c.interval <= 0 {
		t.Errorf("interval = %v, want default", c.interval)
	}
}

func TestChecker_RunAllHealthy(t *testing.T) {
	c := NewChecker(newTestDB(t), 0)
	c.AddCheck(DataDirCheck(t.TempDir()))

	statuses := c.RunOnce(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("Statuses() = %d, want 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(newTestDB(t), 0)

	// Before any run there are no statuses, so IsHealthy is vacuously true.
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestChecker_StoreProbeWithoutPing(t *testing.T) {
	c := NewChecker(getOnly{newTestDB(t)}, 0)
	statuses := c.RunOnce(context.Background())
	if len(statuses) != 1 || !statuses[0].Healthy {
		t.Errorf("statuses = %+v, want healthy store", statuses)
	}
}

func TestChecker_StoreDown(t *testing.T) {
	c := NewChecker(failingStore{}, 0)
	statuses := c.RunOnce(context.Background())
	if statuses[0].Healthy || statuses[0].Error != "unavailable" {
		t.Errorf("status = %+v, want unhealthy", statuses[0])
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false")
	}
}

func TestChecker_ClosedDB(t *testing.T) {
	db := newTestDB(t)
	db.Close()
	c := NewChecker(db, 0)
	if c.RunOnce(context.Background())[0].Healthy {
		t.Error("store check should fail on a closed database")
	}
}

func TestChecker_DataDirRecovers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	c := &Checker{checks: []Check{DataDirCheck(dir)}}

	if c.RunOnce(context.Background())[0].Healthy {
		t.Error("missing dir should be unhealthy on first run")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("recovery should create %s", dir)
	}
	if !c.RunOnce(context.Background())[0].Healthy {
		t.Error("dir should be healthy after recovery")
	}
}

func TestChecker_DataDirFileNotDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	os.WriteFile(path, []byte("not a dir"), 0644)

	c := &Checker{checks: []Check{DataDirCheck(path)}}
	if c.RunOnce(context.Background())[0].Healthy {
		t.Error("data_dir should fail when path is a file")
	}
}

func TestChecker_FailingCheck(t *testing.T) {
	c := &Checker{
		checks: []Check{
			{
				Name: "always_fail",
				CheckFn: func(ctx context.Context) error {
					return os.ErrPermission
				},
			},
		},
	}

	c.runAll(context.Background())

	statuses := c.Statuses()
	if statuses[0].Healthy {
		t.Error("always_fail check should not be healthy")
	}
	if statuses[0].Error == "" {
		t.Error("error message should be populated")
	}
}

func TestChecker_StatusesCopy(t *testing.T) {
	c := NewChecker(newTestDB(t), 0)
	c.runAll(context.Background())

	s1 := c.Statuses()
	s2 := c.Statuses()

	// Verify it's a copy, not the same slice
	if len(s1) > 0 {
		s1[0].Healthy = false
		if !s2[0].Healthy {
			t.Error("Statuses() should return a copy, not a reference")
		}
	}
}
