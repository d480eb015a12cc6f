// Package health runs periodic dependency checks and exposes their latest
// results for the /health endpoint.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/yalla-nemshi/nemshi/internal/domain"
	"github.com/yalla-nemshi/nemshi/internal/infra/metrics"
)

// probePath is read (never written) to prove the store answers.
const probePath = "_health/probe"

const checkTimeout = 10 * time.Second

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Pinger is implemented by stores that can check connectivity directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	started  time.Time
}

// NewChecker creates a checker that probes the document store every
// interval (60s when <= 0).
func NewChecker(store domain.DocumentStore, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Checker{
		interval: interval,
		started:  time.Now(),
		checks: []Check{
			{
				Name: "store",
				CheckFn: func(ctx context.Context) error {
					if p, ok := store.(Pinger); ok {
						return p.Ping(ctx)
					}
					_, err := store.Get(ctx, probePath)
					return err
				},
			},
		},
	}
}

// AddCheck registers an extra check. Call before Run.
func (c *Checker) AddCheck(check Check) {
	c.mu.Lock()
	c.checks = append(c.checks, check)
	c.mu.Unlock()
}

// DataDirCheck verifies a local data directory is usable.
func DataDirCheck(dir string) Check {
	return Check{
		Name:    "data_dir",
		CheckFn: func(ctx context.Context) error { return checkDir(dir) },
		RecoverFn: func(ctx context.Context) error {
			return os.MkdirAll(dir, 0700)
		},
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

// RunOnce runs every check once and returns the results.
func (c *Checker) RunOnce(ctx context.Context) []Status {
	c.runAll(ctx)
	return c.Statuses()
}

func (c *Checker) runAll(ctx context.Context) {
	c.mu.RLock()
	checks := append([]Check(nil), c.checks...)
	c.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check.CheckFn(cctx)
		if err != nil {
			s.Error = err.Error()
			// Attempt recovery
			if check.RecoverFn != nil {
				_ = check.RecoverFn(cctx)
			}
			metrics.HealthStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthStatus.WithLabelValues(check.Name).Set(1)
		}
		cancel()
		statuses[i] = s
	}

	metrics.Uptime.Set(time.Since(c.started).Seconds())

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
