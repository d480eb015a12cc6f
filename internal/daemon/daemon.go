package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yalla-nemshi/nemshi/internal/api"
	"github.com/yalla-nemshi/nemshi/internal/app/backfill"
	"github.com/yalla-nemshi/nemshi/internal/app/engagement"
	"github.com/yalla-nemshi/nemshi/internal/app/friends"
	"github.com/yalla-nemshi/nemshi/internal/app/invite"
	"github.com/yalla-nemshi/nemshi/internal/app/notify"
	"github.com/yalla-nemshi/nemshi/internal/app/walks"
	"github.com/yalla-nemshi/nemshi/internal/domain"
	"github.com/yalla-nemshi/nemshi/internal/health"
	"github.com/yalla-nemshi/nemshi/internal/infra/firebase"
	"github.com/yalla-nemshi/nemshi/internal/infra/firestore"
	_ "github.com/yalla-nemshi/nemshi/internal/infra/metrics" // Register Prometheus metrics
	"github.com/yalla-nemshi/nemshi/internal/infra/push"
	"github.com/yalla-nemshi/nemshi/internal/infra/scheduler"
	"github.com/yalla-nemshi/nemshi/internal/infra/sqlite"
)

// sweepJob is the scheduler name of the auto-complete sweep.
const sweepJob = "walk_sweep"

// Daemon is the core nemshi runtime. It wires together all services.
type Daemon struct {
	Config Config
	Store  domain.DocumentStore
	Server *api.Server
	cancel context.CancelFunc

	Catalog    *engagement.Catalog
	Stats      *engagement.StatsService
	Badges     *engagement.BadgeService
	Recorder   *engagement.Recorder
	Dispatcher *notify.Dispatcher
	Friends    *friends.Service
	Walks      *walks.Service
	Invites    *invite.Service
	Backfill   *backfill.Runner
	Health     *health.Checker
	Scheduler  *scheduler.Scheduler
}

// New creates and initializes a Daemon with all services wired.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(ctx, cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(ctx context.Context, cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// ─── Backends ──────────────────────────────────────────────────────

	var (
		store     domain.DocumentStore
		messenger domain.Messenger
		verifier  api.TokenVerifier
	)

	needApp := cfg.Store.Backend == BackendFirestore || cfg.Push.Backend == PushFCM || cfg.Auth.Enabled
	if needApp {
		app, err := firebase.NewApp(ctx, cfg.Store.ProjectID, cfg.Store.CredentialsFile)
		if err != nil {
			return nil, err
		}

		if cfg.Store.Backend == BackendFirestore {
			client, err := app.Firestore(ctx)
			if err != nil {
				return nil, fmt.Errorf("firestore client: %w", err)
			}
			store = firestore.NewWithClient(client)
		}
		if cfg.Push.Backend == PushFCM {
			m, err := firebase.NewMessenger(ctx, app)
			if err != nil {
				closeStore(store)
				return nil, err
			}
			messenger = m
		}
		if cfg.Auth.Enabled {
			v, err := firebase.NewVerifier(ctx, app)
			if err != nil {
				closeStore(store)
				return nil, err
			}
			verifier = v
		}
	}

	if store == nil {
		db, err := sqlite.Open(cfg.Store.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		store = db
	}
	if messenger == nil {
		messenger = push.NewLogMessenger()
	}
	if verifier == nil {
		log.Printf("[daemon] auth disabled: callables will reject every caller")
	}

	// ─── Engagement ────────────────────────────────────────────────────

	catalog := engagement.DefaultCatalog()
	if cfg.Badges.CatalogFile != "" {
		c, err := engagement.LoadCatalogFile(cfg.Badges.CatalogFile)
		if err != nil {
			closeStore(store)
			return nil, fmt.Errorf("load badge catalog: %w", err)
		}
		catalog = c
	}

	d := &Daemon{
		Config:  cfg,
		Store:   store,
		Catalog: catalog,
	}

	d.Dispatcher = notify.NewDispatcher(store, messenger)
	d.Stats = engagement.NewStatsService(store, cfg.Stats.DedupeCompletions)
	d.Badges = engagement.NewBadgeService(store, catalog, d.Dispatcher)
	d.Recorder = engagement.NewRecorder(d.Stats, d.Badges)

	// ─── Walks and friend views ────────────────────────────────────────

	d.Friends = friends.NewService(store, cfg.Sync.MaxWalkSummaries)
	d.Walks = walks.NewService(store, d.Recorder, d.Dispatcher, d.Friends, walks.Config{
		PlannedMinutes: cfg.Walks.PlannedMinutes,
		Grace:          parseDuration(cfg.Walks.Grace, walks.DefaultGrace),
		// SQLite has no change feed to deliver the auto-complete write back.
		Inline: cfg.Store.Backend == BackendSQLite,
	})
	d.Invites = invite.NewService(store)
	d.Backfill = backfill.NewRunner(store, d.Friends)

	// ─── Health ────────────────────────────────────────────────────────

	d.Health = health.NewChecker(store, parseDuration(cfg.Telemetry.HealthInterval, 60*time.Second))
	if cfg.Store.Backend == BackendSQLite {
		d.Health.AddCheck(health.DataDirCheck(cfg.Store.DataDir))
	}

	// ─── API server ────────────────────────────────────────────────────

	srv := api.NewServer(api.Services{
		Walks:    d.Walks,
		Friends:  d.Friends,
		Invites:  d.Invites,
		Catalog:  catalog,
		Health:   d.Health,
		Verifier: verifier,
	})
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	srv.SetRetryOnError(cfg.Triggers.RetryOnError)
	srv.SetTriggerToken(cfg.Triggers.Token)
	srv.SetTimeout(parseDuration(cfg.API.RequestTimeout, time.Minute))
	d.Server = srv

	return d, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Health checker (always runs)
	go d.Health.Run(ctx)

	if d.Config.Walks.SweepEnabled {
		sched, err := scheduler.New()
		if err != nil {
			return err
		}
		interval := parseDuration(d.Config.Walks.SweepInterval, 5*time.Minute)
		err = sched.Every(sweepJob, interval, false, func(ctx context.Context) error {
			n, err := d.Walks.Sweep(ctx)
			if n > 0 {
				log.Printf("[daemon] sweep auto-completed %d walks", n)
			}
			return err
		})
		if err != nil {
			return err
		}
		sched.Start()
		d.Scheduler = sched
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if d.Scheduler != nil {
			_ = d.Scheduler.Stop()
		}
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	fmt.Printf("nemshi serving on http://%s\n", addr)
	fmt.Printf("  Store: %s\n", d.Config.Store.Backend)
	fmt.Printf("  Push:  %s\n", d.Config.Push.Backend)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	closeStore(d.Store)
}

func closeStore(store domain.DocumentStore) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		log.Printf("[daemon] close store: %v", err)
	}
}
