package scraper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ria-tools/riawatch/internal/metrics"
)

// Orchestrator drives one scrape cycle: discovery feeds a bounded pool of
// workers, each of which runs fetch → extract → persist for a single URL.
// Worker failures are isolated; they are logged, counted and never abort the
// cycle or cancel sibling workers.
type Orchestrator struct {
	discoverer *Discoverer
	fetcher    Fetcher
	store      ListingStore
	workers    int
	logger     *zap.Logger
}

// NewOrchestrator builds an Orchestrator with a pool of the given size.
func NewOrchestrator(
	discoverer *Discoverer,
	fetcher Fetcher,
	store ListingStore,
	workers int,
	logger *zap.Logger,
) *Orchestrator {
	if workers <= 0 {
		workers = 1
	}
	return &Orchestrator{
		discoverer: discoverer,
		fetcher:    fetcher,
		store:      store,
		workers:    workers,
		logger:     logger,
	}
}

// RunCycle performs one full scrape cycle and returns its outcome counts.
// The cycle completes when discovery is exhausted and all in-flight workers
// have finished. Context cancellation stops discovery and lets workers finish
// their current URL.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleStats, error) {
	cycleID := uuid.NewString()
	log := o.logger.With(zap.String("cycle_id", cycleID))
	start := time.Now()
	log.Info("scrape cycle starting")

	urls := make(chan string, o.workers)
	go o.discoverer.Run(ctx, urls)

	var attempted, inserted, skipped, failed atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range urls {
				attempted.Add(1)
				switch outcome, err := o.processURL(ctx, log, url); {
				case err != nil:
					failed.Add(1)
					metrics.ObserveListing("failed")
				case outcome == Inserted:
					inserted.Add(1)
					metrics.ObserveListing("inserted")
				default:
					skipped.Add(1)
					metrics.ObserveListing("skipped")
				}
			}
		}()
	}
	wg.Wait()

	stats := CycleStats{
		CycleID:   cycleID,
		Attempted: int(attempted.Load()),
		Inserted:  int(inserted.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}
	elapsed := time.Since(start)
	metrics.ObserveCycle(elapsed)
	log.Info("scrape cycle finished",
		zap.Int("attempted", stats.Attempted),
		zap.Int("inserted", stats.Inserted),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Duration("elapsed", elapsed),
	)
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// processURL runs the per-URL pipeline. The error return classifies the URL
// as failed for the cycle; the concrete cause is logged here with its kind.
func (o *Orchestrator) processURL(ctx context.Context, log *zap.Logger, url string) (Outcome, error) {
	body, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		metrics.ObserveFetch("error")
		var fe *FetchError
		if errors.As(err, &fe) {
			log.Warn("listing fetch failed",
				zap.String("url", url),
				zap.Int("attempts", fe.Attempts),
				zap.Error(fe.Err),
			)
		} else {
			log.Warn("listing fetch failed", zap.String("url", url), zap.Error(err))
		}
		return 0, err
	}
	metrics.ObserveFetch("ok")

	rec, err := Extract(url, body)
	if err != nil {
		log.Warn("listing extraction failed", zap.String("url", url), zap.Error(err))
		return 0, err
	}

	outcome, err := o.store.Insert(ctx, rec)
	if err != nil {
		log.Error("listing persist failed", zap.String("url", url), zap.Error(err))
		return 0, err
	}
	if outcome == Inserted {
		log.Info("listing saved", zap.String("url", url), zap.String("title", rec.Title))
	} else {
		log.Debug("listing already known", zap.String("url", url))
	}
	return outcome, nil
}
