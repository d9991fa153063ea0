// Package dump produces compressed, date-stamped snapshots of the database
// by driving the external pg_dump and gzip processes.
package dump

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ria-tools/riawatch/internal/metrics"
)

// Uploader pushes a finished artifact to remote storage. Optional.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

// CommandRunner executes an external process. The seam exists so tests can
// fake pg_dump and gzip.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes the command, returning stderr in the error on failure.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %s: %w", name, msg, err)
	}
	return nil
}

// Config controls the Dumper.
type Config struct {
	DatabaseURL string
	Dir         string
	// Keep is how many artifacts survive retention cleanup.
	Keep int
}

// Clock supplies the timestamp embedded in artifact names.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Dumper runs pg_dump against the store and compresses the result.
type Dumper struct {
	cfg      Config
	runner   CommandRunner
	uploader Uploader
	clock    Clock
	logger   *zap.Logger
}

// Option customizes a Dumper.
type Option func(*Dumper)

// WithRunner replaces the process runner.
func WithRunner(r CommandRunner) Option {
	return func(d *Dumper) { d.runner = r }
}

// WithUploader enables remote upload of finished artifacts.
func WithUploader(u Uploader) Option {
	return func(d *Dumper) { d.uploader = u }
}

// WithClock replaces the artifact-name clock.
func WithClock(c Clock) Option {
	return func(d *Dumper) { d.clock = c }
}

// New builds a Dumper and ensures the artifact directory exists.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Dumper, error) {
	if cfg.Dir == "" {
		cfg.Dir = "dumps"
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 7
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	d := &Dumper{
		cfg:    cfg,
		runner: ExecRunner{},
		clock:  systemClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run dumps the database to a date-stamped file, compresses it with gzip -9
// and applies retention. It returns the compressed artifact path. Failure is
// reported to the caller but never affects subsequent scheduling.
func (d *Dumper) Run(ctx context.Context) (string, error) {
	stamp := d.clock.Now().Format("2006-01-02_15-04-05")
	sqlPath := filepath.Join(d.cfg.Dir, fmt.Sprintf("riawatch_%s.sql", stamp))
	d.logger.Info("database dump starting", zap.String("path", sqlPath))

	if err := d.runner.Run(ctx, "pg_dump", d.cfg.DatabaseURL, "-f", sqlPath); err != nil {
		d.removeIfPresent(sqlPath)
		metrics.ObserveDump("error")
		return "", fmt.Errorf("pg_dump: %w", err)
	}

	// gzip -9 replaces the .sql file with .sql.gz.
	if err := d.runner.Run(ctx, "gzip", "-9", "-f", sqlPath); err != nil {
		d.removeIfPresent(sqlPath)
		metrics.ObserveDump("error")
		return "", fmt.Errorf("compress dump: %w", err)
	}
	gzPath := sqlPath + ".gz"

	d.cleanupOld()

	if d.uploader != nil {
		uri, err := d.uploader.UploadFile(ctx, gzPath)
		if err != nil {
			// The local artifact is intact; upload failure is non-fatal.
			d.logger.Error("dump upload failed", zap.String("path", gzPath), zap.Error(err))
		} else {
			d.logger.Info("dump uploaded", zap.String("uri", uri))
		}
	}

	metrics.ObserveDump("ok")
	d.logger.Info("database dump finished", zap.String("path", gzPath))
	return gzPath, nil
}

// cleanupOld removes the oldest artifacts beyond the retention count.
func (d *Dumper) cleanupOld() {
	pattern := filepath.Join(d.cfg.Dir, "riawatch_*.sql.gz")
	paths, err := filepath.Glob(pattern)
	if err != nil || len(paths) <= d.cfg.Keep {
		return
	}
	// The timestamp format sorts lexicographically.
	sort.Strings(paths)
	for _, old := range paths[:len(paths)-d.cfg.Keep] {
		if err := os.Remove(old); err != nil {
			d.logger.Warn("failed to remove old dump", zap.String("path", old), zap.Error(err))
			continue
		}
		d.logger.Info("removed old dump", zap.String("path", old))
	}
}

func (d *Dumper) removeIfPresent(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to remove partial dump", zap.String("path", path), zap.Error(err))
	}
}
