// Package scheduler fires the scrape and dump jobs at their configured
// times of day, daily, for the lifetime of the process.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ria-tools/riawatch/internal/config"
)

// Kind identifies which job a fire triggers.
type Kind string

// Fire kinds.
const (
	KindScrape Kind = "scrape"
	KindDump   Kind = "dump"
)

// Clock abstracts wall-clock reads for testing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Scheduler owns the process-lifetime fire loop. Next fire times are
// explicit values recomputed from the cron schedules after every fire, never
// mutable shared state. Jobs run synchronously on the loop's goroutine, so
// scrape and dump serialize against each other; an occurrence that falls
// while a job is running, or while the process is down, is skipped rather
// than backfilled.
type Scheduler struct {
	scrapeSched cron.Schedule
	dumpSched   cron.Schedule
	runScrape   func(ctx context.Context) error
	runDump     func(ctx context.Context) error
	clock       Clock
	wait        func(ctx context.Context, d time.Duration) error
	logger      *zap.Logger
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithWait replaces the cancellable sleep used between fires.
func WithWait(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.wait = wait }
}

// New builds a Scheduler firing scrape at scrapeAt and dump at dumpAt,
// each recurring every 24 hours.
func New(
	scrapeAt, dumpAt config.ClockTime,
	runScrape, runDump func(ctx context.Context) error,
	logger *zap.Logger,
	opts ...Option,
) (*Scheduler, error) {
	scrapeSched, err := dailySchedule(scrapeAt)
	if err != nil {
		return nil, fmt.Errorf("scrape schedule: %w", err)
	}
	dumpSched, err := dailySchedule(dumpAt)
	if err != nil {
		return nil, fmt.Errorf("dump schedule: %w", err)
	}
	s := &Scheduler{
		scrapeSched: scrapeSched,
		dumpSched:   dumpSched,
		runScrape:   runScrape,
		runDump:     runDump,
		clock:       systemClock{},
		wait:        sleepCtx,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func dailySchedule(at config.ClockTime) (cron.Schedule, error) {
	spec := fmt.Sprintf("%d %d * * *", at.Minute, at.Hour)
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return sched, nil
}

// Run loops indefinitely, waiting for the earliest next fire and running
// that job, until ctx is canceled. It never returns a non-nil error for job
// failures; those are logged and the recurrence continues.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler active")
	for {
		now := s.clock.Now()
		kind, at := s.nextFire(now)
		s.logger.Info("waiting for next fire",
			zap.String("kind", string(kind)),
			zap.Time("at", at),
		)
		if err := s.wait(ctx, at.Sub(now)); err != nil {
			s.logger.Info("scheduler shutting down")
			return nil
		}
		s.fire(ctx, kind)
		if ctx.Err() != nil {
			s.logger.Info("scheduler shutting down")
			return nil
		}
	}
}

// RunOnce fires a single scrape immediately and returns; manual-trigger
// mode. No dump, no recurrence.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.logger.Info("manual trigger: firing scrape once")
	if err := s.runScrape(ctx); err != nil {
		return fmt.Errorf("manual scrape: %w", err)
	}
	return nil
}

// nextFire picks the earliest upcoming occurrence across both kinds.
func (s *Scheduler) nextFire(now time.Time) (Kind, time.Time) {
	nextScrape := s.scrapeSched.Next(now)
	nextDump := s.dumpSched.Next(now)
	if nextDump.Before(nextScrape) {
		return KindDump, nextDump
	}
	return KindScrape, nextScrape
}

func (s *Scheduler) fire(ctx context.Context, kind Kind) {
	s.logger.Info("firing", zap.String("kind", string(kind)))
	var err error
	switch kind {
	case KindScrape:
		err = s.runScrape(ctx)
	case KindDump:
		err = s.runDump(ctx)
	}
	if err != nil && ctx.Err() == nil {
		// A failed run today must not block tomorrow's occurrence.
		s.logger.Error("scheduled job failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
