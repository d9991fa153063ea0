// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	listingsTotal        *prometheus.CounterVec
	fetchAttemptsTotal   *prometheus.CounterVec
	cycleDurationSeconds prometheus.Histogram
	cyclesTotal          prometheus.Counter
	dumpsTotal           *prometheus.CounterVec

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		listingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riawatch_listings_total",
				Help: "Listing pipeline outcomes, labeled by result.",
			},
			[]string{"result"},
		)
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riawatch_fetch_attempts_total",
				Help: "Page fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "riawatch_cycle_duration_seconds",
				Help:    "Wall-clock duration of scrape cycles.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		)
		cyclesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "riawatch_cycles_total",
				Help: "Completed scrape cycles.",
			},
		)
		dumpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riawatch_dumps_total",
				Help: "Database dump runs, labeled by status.",
			},
			[]string{"status"},
		)
	})
}

// ObserveListing records one listing pipeline outcome
// (inserted, skipped, failed).
func ObserveListing(result string) {
	if listingsTotal != nil {
		listingsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveFetch records one fetch attempt outcome (ok, error).
func ObserveFetch(outcome string) {
	if fetchAttemptsTotal != nil {
		fetchAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveCycle records a completed scrape cycle and its duration.
func ObserveCycle(d time.Duration) {
	if cyclesTotal != nil {
		cyclesTotal.Inc()
	}
	if cycleDurationSeconds != nil {
		cycleDurationSeconds.Observe(d.Seconds())
	}
}

// ObserveDump records a dump run (ok, error).
func ObserveDump(status string) {
	if dumpsTotal != nil {
		dumpsTotal.WithLabelValues(status).Inc()
	}
}
