// Package publish emits cycle-summary events after each scrape cycle.
package publish

import (
	"context"
	"time"

	"github.com/ria-tools/riawatch/internal/scraper"
)

// CycleEvent is the payload published after a completed scrape cycle.
type CycleEvent struct {
	CycleID    string             `json:"cycle_id"`
	FinishedAt time.Time          `json:"finished_at"`
	Duration   string             `json:"duration"`
	Stats      scraper.CycleStats `json:"stats"`
}

// Publisher pushes cycle events to an external channel.
type Publisher interface {
	PublishCycle(ctx context.Context, event CycleEvent) error
	Close() error
}

// NoOp discards events; used when no Pub/Sub topic is configured.
type NoOp struct{}

// PublishCycle for NoOp does nothing.
func (NoOp) PublishCycle(context.Context, CycleEvent) error { return nil }

// Close for NoOp does nothing.
func (NoOp) Close() error { return nil }
