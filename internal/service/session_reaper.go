package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/target/bookshelf/internal/observability/metrics"
	"github.com/target/bookshelf/internal/observability/statsd"
	"github.com/target/bookshelf/internal/ports"
)

// SessionReaperOptions groups dependencies for SessionReaper.
type SessionReaperOptions struct {
	Purger   ports.SessionPurger // Required: backend that deletes expired sessions
	Interval time.Duration       // Required: time between purge passes
	Logger   *slog.Logger        // Optional: structured logger
	Metrics  statsd.Sink         // Optional: metrics sink (StatsD-compatible)
}

// SessionReaper periodically deletes expired sessions from backends without key expiry.
type SessionReaper struct {
	purger   ports.SessionPurger
	interval time.Duration
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewSessionReaper constructs a SessionReaper.
func NewSessionReaper(opts SessionReaperOptions) (*SessionReaper, error) {
	if opts.Purger == nil {
		return nil, errors.New("SessionPurger is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("purge interval must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionReaper{
		purger:   opts.Purger,
		interval: opts.Interval,
		logger:   logger.With("component", "session_reaper"),
		metrics:  opts.Metrics,
	}, nil
}

// Run purges once after a short jitter and then on every interval until ctx is cancelled.
// Purge failures are logged and retried on the next tick. Returns nil on cancellation.
func (r *SessionReaper) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting session reaper", "interval", r.interval)

	// Instances started together should not purge in lockstep.
	r.waitWithJitter(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.purge(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "session reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.purge(ctx)
		}
	}
}

// PurgeOnce runs a single purge pass and returns the number of deleted sessions.
func (r *SessionReaper) PurgeOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := r.purger.PurgeExpired(ctx)
	if !errors.Is(err, context.Canceled) {
		metrics.SessionsPurged(r.metrics, n, time.Since(start), err)
	}
	return n, err
}

func (r *SessionReaper) purge(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := r.PurgeOnce(ctx)
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil:
		r.logger.ErrorContext(ctx, "purge expired sessions failed", "error", err)
	case n > 0:
		r.logger.InfoContext(ctx, "purged expired sessions", "count", n)
	}
}

// waitWithJitter delays up to 10% of the interval.
func (r *SessionReaper) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		r.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}
