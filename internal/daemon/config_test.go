package daemon

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("NEMSHI_HOME", "/tmp/nemshi-home")
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8080)
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("Store.Backend = %q, want sqlite", cfg.Store.Backend)
	}
	if cfg.Store.DataDir != filepath.Join("/tmp/nemshi-home", "data") {
		t.Errorf("Store.DataDir = %q", cfg.Store.DataDir)
	}
	if cfg.Sync.MaxWalkSummaries != 40 {
		t.Errorf("Sync.MaxWalkSummaries = %d, want 40", cfg.Sync.MaxWalkSummaries)
	}
	if !cfg.Stats.DedupeCompletions {
		t.Error("Stats.DedupeCompletions should default on")
	}
	if cfg.Walks.PlannedMinutes != 120 || cfg.Walks.Grace != "30m" {
		t.Errorf("Walks = %+v", cfg.Walks)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	t.Setenv("NEMSHI_HOME", t.TempDir())
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default", cfg.API.Port)
	}
}

func TestLoadConfigFile_Overrides(t *testing.T) {
	t.Setenv("NEMSHI_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[api]
port = 9000

[sync]
max_walk_summaries = 25

[walks]
grace = "10m"
sweep_enabled = false

[triggers]
retry_on_error = true
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Sync.MaxWalkSummaries != 25 {
		t.Errorf("MaxWalkSummaries = %d, want 25", cfg.Sync.MaxWalkSummaries)
	}
	if cfg.Walks.SweepEnabled {
		t.Error("SweepEnabled should be false")
	}
	if !cfg.Triggers.RetryOnError {
		t.Error("RetryOnError should be true")
	}
	// Untouched sections keep their defaults.
	if cfg.Walks.PlannedMinutes != 120 {
		t.Errorf("PlannedMinutes = %v, want 120", cfg.Walks.PlannedMinutes)
	}
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	t.Setenv("NEMSHI_HOME", t.TempDir())
	dir := t.TempDir()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", "[api\nport = 1", "parse config"},
		{"backend", "[store]\nbackend = \"mongo\"", "unknown store backend"},
		{"firestore without project", "[store]\nbackend = \"firestore\"", "project_id"},
		{"push", "[push]\nbackend = \"apns\"", "unknown push backend"},
		{"port", "[api]\nport = 70000", "out of range"},
		{"duration", "[walks]\ngrace = \"soon\"", "walks.grace"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOOGLE_CLOUD_PROJECT", "")
			path := filepath.Join(dir, strings.Repeat("c", i+1)+".toml")
			if err := os.WriteFile(path, []byte(tt.body), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfigFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigFile_Env(t *testing.T) {
	t.Setenv("NEMSHI_HOME", t.TempDir())
	t.Setenv("NEMSHI_STORE_BACKEND", "FIRESTORE")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "yalla-nemshi")
	t.Setenv("NEMSHI_API_PORT", "9090")
	t.Setenv("NEMSHI_TRIGGER_TOKEN", "s3cret")

	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.Store.Backend != BackendFirestore {
		t.Errorf("Backend = %q, want firestore", cfg.Store.Backend)
	}
	if cfg.Store.ProjectID != "yalla-nemshi" {
		t.Errorf("ProjectID = %q", cfg.Store.ProjectID)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Triggers.Token != "s3cret" {
		t.Errorf("Token = %q", cfg.Triggers.Token)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("NEMSHI_HOME", t.TempDir())
	cfg := DefaultConfig()
	cfg.Sync.MaxWalkSummaries = 12
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got.Sync.MaxWalkSummaries != 12 {
		t.Errorf("MaxWalkSummaries = %d, want 12", got.Sync.MaxWalkSummaries)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"", time.Minute},
		{"5m", 5 * time.Minute},
		{"90s", 90 * time.Second},
		{"garbage", time.Minute},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.input, time.Minute); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSetupLogging_File(t *testing.T) {
	defer log.SetOutput(os.Stderr)
	defer log.SetFlags(log.LstdFlags)

	path := filepath.Join(t.TempDir(), "logs", "nemshi.log")
	closer, err := SetupLogging(LoggingConfig{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("SetupLogging() error: %v", err)
	}
	log.Printf("[test] hello")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[test] hello") {
		t.Errorf("log file = %q", data)
	}
	if !strings.Contains(string(data), "config_test.go") {
		t.Errorf("debug level should include file names: %q", data)
	}
}

func TestNewWithConfig_SQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NEMSHI_HOME", dir)
	cfg := DefaultConfig()
	cfg.Store.DataDir = filepath.Join(dir, "data")

	d, err := NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if d.Walks == nil || d.Friends == nil || d.Invites == nil || d.Backfill == nil {
		t.Fatal("services not wired")
	}
	if d.Catalog.Len() != 14 {
		t.Errorf("catalog has %d badges, want 14", d.Catalog.Len())
	}
	statuses := d.Health.RunOnce(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("got %d health checks, want store and data dir", len(statuses))
	}
	if !d.Health.IsHealthy() {
		t.Errorf("fresh daemon unhealthy: %+v", statuses)
	}
}

func TestNewWithConfig_BadCatalog(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Store.DataDir = filepath.Join(dir, "data")
	cfg.Badges.CatalogFile = filepath.Join(dir, "missing.toml")

	if _, err := NewWithConfig(context.Background(), cfg); err == nil {
		t.Fatal("expected catalog load error")
	}
}
