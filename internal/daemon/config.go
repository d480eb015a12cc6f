// Package daemon manages the nemshi daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Store backends.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Push backends.
const (
	PushLog = "log"
	PushFCM = "fcm"
)

// Config holds all daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Store     StoreConfig     `toml:"store"`
	Push      PushConfig      `toml:"push"`
	Auth      AuthConfig      `toml:"auth"`
	Sync      SyncConfig      `toml:"sync"`
	Stats     StatsConfig     `toml:"stats"`
	Badges    BadgesConfig    `toml:"badges"`
	Walks     WalksConfig     `toml:"walks"`
	Triggers  TriggersConfig  `toml:"triggers"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	RequestTimeout string `toml:"request_timeout"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Backend         string `toml:"backend"` // "sqlite" or "firestore"
	DataDir         string `toml:"data_dir"`
	ProjectID       string `toml:"project_id"`
	CredentialsFile string `toml:"credentials_file"`
}

// PushConfig selects the push transport.
type PushConfig struct {
	Backend string `toml:"backend"` // "log" or "fcm"
}

// AuthConfig controls ID token verification for callables.
type AuthConfig struct {
	Enabled bool `toml:"enabled"`
}

// SyncConfig controls the friend views.
type SyncConfig struct {
	MaxWalkSummaries int `toml:"max_walk_summaries"`
}

// StatsConfig controls the stats aggregator.
type StatsConfig struct {
	DedupeCompletions bool `toml:"dedupe_completions"`
}

// BadgesConfig controls the badge catalog.
type BadgesConfig struct {
	CatalogFile string `toml:"catalog_file"` // empty uses the built-in catalog
}

// WalksConfig controls the walk lifecycle handlers.
type WalksConfig struct {
	PlannedMinutes float64 `toml:"planned_minutes"`
	Grace          string  `toml:"grace"`
	SweepEnabled   bool    `toml:"sweep_enabled"`
	SweepInterval  string  `toml:"sweep_interval"`
}

// TriggersConfig controls trigger acknowledgement.
type TriggersConfig struct {
	RetryOnError bool   `toml:"retry_on_error"`
	Token        string `toml:"token"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"` // "info" or "debug"
	File  string `toml:"file"`  // empty logs to stderr only
}

// TelemetryConfig controls metrics and health checks.
type TelemetryConfig struct {
	Prometheus     bool   `toml:"prometheus"`
	HealthInterval string `toml:"health_interval"`
}

// DefaultConfig returns a configuration for local development.
func DefaultConfig() Config {
	homeDir := nemshiHome()
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			RequestTimeout: "60s",
		},
		Store: StoreConfig{
			Backend: BackendSQLite,
			DataDir: filepath.Join(homeDir, "data"),
		},
		Push: PushConfig{
			Backend: PushLog,
		},
		Sync: SyncConfig{
			MaxWalkSummaries: 40,
		},
		Stats: StatsConfig{
			DedupeCompletions: true,
		},
		Walks: WalksConfig{
			PlannedMinutes: 120,
			Grace:          "30m",
			SweepEnabled:   true,
			SweepInterval:  "5m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Prometheus:     true,
			HealthInterval: "60s",
		},
	}
}

// LoadConfig reads config from ~/.nemshi/config.toml, falling back to
// defaults, then applies environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(nemshiHome(), "config.toml"))
}

// LoadConfigFile reads config from path. A missing file yields defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NEMSHI_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		cfg.Store.ProjectID = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && cfg.Store.CredentialsFile == "" {
		cfg.Store.CredentialsFile = v
	}
	if v := os.Getenv("NEMSHI_PUSH_BACKEND"); v != "" {
		cfg.Push.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("NEMSHI_TRIGGER_TOKEN"); v != "" {
		cfg.Triggers.Token = v
	}
	for _, key := range []string{"PORT", "NEMSHI_API_PORT"} {
		if v := os.Getenv(key); v != "" {
			if port, err := strconv.Atoi(v); err == nil {
				cfg.API.Port = port
			}
		}
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required for the sqlite backend")
		}
	case BackendFirestore:
		if c.Store.ProjectID == "" {
			return fmt.Errorf("store.project_id (or GOOGLE_CLOUD_PROJECT) is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Push.Backend {
	case PushLog, PushFCM:
	default:
		return fmt.Errorf("unknown push backend %q", c.Push.Backend)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	for name, v := range map[string]string{
		"api.request_timeout":       c.API.RequestTimeout,
		"walks.grace":               c.Walks.Grace,
		"walks.sweep_interval":      c.Walks.SweepInterval,
		"telemetry.health_interval": c.Telemetry.HealthInterval,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// SaveConfig writes the config to ~/.nemshi/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(nemshiHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// nemshiHome returns the nemshi data directory.
func nemshiHome() string {
	if env := os.Getenv("NEMSHI_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".nemshi")
}

// Home is exported for use by other packages.
func Home() string {
	return nemshiHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
