// Package app initializes and holds the long-lived application services,
// acting as the dependency injection container for the process.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ria-tools/riawatch/internal/api"
	"github.com/ria-tools/riawatch/internal/config"
	"github.com/ria-tools/riawatch/internal/dump"
	"github.com/ria-tools/riawatch/internal/logging"
	"github.com/ria-tools/riawatch/internal/metrics"
	"github.com/ria-tools/riawatch/internal/publish"
	"github.com/ria-tools/riawatch/internal/scheduler"
	"github.com/ria-tools/riawatch/internal/scraper"
	"github.com/ria-tools/riawatch/internal/storage"
)

// App wires configuration into live services. It is built once at startup
// and fails fast when a critical dependency (the database) is unreachable.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	orch      *scraper.Orchestrator
	dumper    *dump.Dumper
	publisher publish.Publisher
	uploader  *storage.GCSUploader
	ops       *api.Server
	sched     *scheduler.Scheduler
}

// New builds the full service graph from a validated config.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.LogDev)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	store, err := storage.New(ctx, storage.StoreConfig{
		DSN:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	fetcher := scraper.NewPageFetcher(scraper.FetcherConfig{
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.RequestTimeout(),
		MaxAttempts: cfg.RetryAttempts,
		RetryDelay:  cfg.RetryDelay(),
	}, logger)
	discoverer := scraper.NewDiscoverer(fetcher, cfg.StartURL, cfg.MaxPages, logger)
	orch := scraper.NewOrchestrator(discoverer, fetcher, store, cfg.ConcurrentRequests, logger)

	a := &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		orch:      orch,
		publisher: publish.NoOp{},
	}

	if cfg.GCSBucket != "" {
		uploader, err := storage.NewGCSUploader(ctx, cfg.GCSBucket)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init gcs uploader: %w", err)
		}
		a.uploader = uploader
	}

	dumpOpts := []dump.Option{}
	if a.uploader != nil {
		dumpOpts = append(dumpOpts, dump.WithUploader(a.uploader))
	}
	dumper, err := dump.New(dump.Config{
		DatabaseURL: cfg.DatabaseURL,
		Dir:         cfg.DumpDir,
		Keep:        cfg.DumpKeep,
	}, logger, dumpOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init dumper: %w", err)
	}
	a.dumper = dumper

	if cfg.PubSubProject != "" {
		pub, err := publish.NewPubSub(ctx, cfg.PubSubProject, cfg.PubSubTopic)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		a.publisher = pub
	}

	if cfg.OpsAddr != "" {
		a.ops = api.NewServer(cfg.OpsAddr, store, logger)
	}

	scrapeAt, _ := config.ParseClockTime(cfg.ScrapeTime)
	dumpAt, _ := config.ParseClockTime(cfg.DumpTime)
	sched, err := scheduler.New(scrapeAt, dumpAt, a.runScrape, a.runDump, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	a.sched = sched

	return a, nil
}

// Run starts the ops server (when configured) and blocks in the scheduler
// loop until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if a.ops != nil {
		a.ops.Start()
	}
	return a.sched.Run(ctx)
}

// RunOnce performs a single scrape cycle immediately and returns, without
// dumping or recurring.
func (a *App) RunOnce(ctx context.Context) error {
	return a.sched.RunOnce(ctx)
}

// runScrape is the scheduler's scrape fire handler.
func (a *App) runScrape(ctx context.Context) error {
	start := time.Now()
	stats, err := a.orch.RunCycle(ctx)
	if err != nil {
		return err
	}
	event := publish.CycleEvent{
		CycleID:    stats.CycleID,
		FinishedAt: time.Now().UTC(),
		Duration:   time.Since(start).Round(time.Millisecond).String(),
		Stats:      stats,
	}
	if err := a.publisher.PublishCycle(ctx, event); err != nil {
		// Event delivery is best-effort; the cycle itself succeeded.
		a.logger.Warn("cycle event publish failed", zap.Error(err))
	}
	return nil
}

// runDump is the scheduler's dump fire handler.
func (a *App) runDump(ctx context.Context) error {
	_, err := a.dumper.Run(ctx)
	return err
}

// Logger exposes the process logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close releases all held resources. Safe on a partially built App.
func (a *App) Close() {
	if a.ops != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.ops.Shutdown(ctx); err != nil {
			a.logger.Warn("ops server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close failed", zap.Error(err))
		}
	}
	if a.uploader != nil {
		if err := a.uploader.Close(); err != nil {
			a.logger.Warn("uploader close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
