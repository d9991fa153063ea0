// Package cmd defines the CLI for the riawatch executable.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ria-tools/riawatch/internal/app"
	"github.com/ria-tools/riawatch/internal/config"
)

var testNow bool

// newRootCmd creates the root command. The binary has a single mode switch:
// --test-now runs one scrape cycle and exits; otherwise the scheduler runs
// until the process receives SIGINT or SIGTERM.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "riawatch",
		Short: "Daily AutoRia listing scraper with database dumps",
		Long: `riawatch crawls the AutoRia used-car search index on a daily
schedule, persists first-seen listings into PostgreSQL with URL-based
deduplication, and produces a compressed pg_dump snapshot of the store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().BoolVar(&testNow, "test-now", false,
		"run one scrape cycle immediately and exit (no dump, no recurrence)")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer application.Close()

	if testNow {
		return application.RunOnce(ctx)
	}
	return application.Run(ctx)
}

// Execute runs the root command. A startup failure exits non-zero; a clean
// shutdown exits zero.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "riawatch:", err)
		os.Exit(1)
	}
}
