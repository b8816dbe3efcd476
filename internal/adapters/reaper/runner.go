// Package reaper runs the expired-session purge against PostgreSQL.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/bookshelf/internal/adapters/postgres"
	"github.com/target/bookshelf/internal/observability/statsd"
	"github.com/target/bookshelf/internal/ports"
	"github.com/target/bookshelf/internal/service"
)

// Runner provides a simple adapter to run the session reaper loop.
type Runner struct {
	reaper *service.SessionReaper
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB       *sql.DB
	Interval time.Duration
	Logger   *slog.Logger

	// Optional dependency injection for testing
	Purger  ports.SessionPurger
	Metrics statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	purger := opts.Purger
	if purger == nil {
		purger = postgres.NewSessionStore(opts.DB)
	}

	reaper, err := service.NewSessionReaper(service.SessionReaperOptions{
		Purger:   purger,
		Interval: opts.Interval,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire session reaper: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Purger == nil {
		return errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
