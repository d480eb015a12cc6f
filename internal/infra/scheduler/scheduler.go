// Package scheduler runs periodic background jobs (the walk auto-complete
// sweep) on top of gocron.
//
// Each job runs in singleton mode: a run still in progress when the next
// tick arrives causes that tick to be skipped, never overlapped.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job is a unit of periodic work. The context is cancelled on Stop.
type Job func(ctx context.Context) error

// Scheduler wraps a gocron scheduler with a shared cancellation context.
type Scheduler struct {
	sched  gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	runs map[string]int
}

// New creates a stopped scheduler.
func New() (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{sched: sched, ctx: ctx, cancel: cancel, runs: make(map[string]int)}, nil
}

// Every registers job to run every interval. With immediate set, the first
// run happens as soon as the scheduler starts.
func (s *Scheduler) Every(name string, interval time.Duration, immediate bool, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if immediate {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.run(name, job) }),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	if s.ctx.Err() != nil {
		return
	}
	if err := job(s.ctx); err != nil {
		log.Printf("[scheduler] job %s: %v", name, err)
	}
	s.mu.Lock()
	s.runs[name]++
	s.mu.Unlock()
}

// Runs returns how many times the named job has completed.
func (s *Scheduler) Runs(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[name]
}

// Start begins running registered jobs.
func (s *Scheduler) Start() {
	s.sched.Start()
}

// Stop cancels in-flight jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.sched.Shutdown()
}
