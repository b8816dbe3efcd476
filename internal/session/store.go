// Package session owns the per-browser-session identity state and notifies subscribers
// whenever it changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
	"github.com/target/bookshelf/internal/observability/metrics"
	"github.com/target/bookshelf/internal/observability/statsd"
	"github.com/target/bookshelf/internal/ports"
)

// DefaultSignOutTimeout bounds how long SignOut waits for the collaborator.
const DefaultSignOutTimeout = 5 * time.Second

// Options configures a Store.
type Options struct {
	Logger         *slog.Logger
	Metrics        statsd.Sink
	SignOutTimeout time.Duration
}

var settled = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type subscription struct {
	id   uint64
	fn   func(domainauth.State)
	live atomic.Bool
}

// Store holds the identity state of one browser session.
//
// Transitions are queued and delivered in order by a single goroutine at a time, so a
// callback never runs re-entrantly. A transition raised from inside a callback is delivered
// after the current round completes.
type Store struct {
	collab         ports.AuthCollaborator
	logger         *slog.Logger
	metrics        statsd.Sink
	signOutTimeout time.Duration

	initOnce  sync.Once
	ready     chan struct{}
	readyOnce sync.Once

	mu         sync.Mutex
	state      domainauth.State
	subs       []*subscription
	nextSubID  uint64
	pending    []domainauth.State
	delivering bool
	closed     bool
	stopWatch  func()

	// degraded marks an absent state that came from a failed lookup rather than a
	// confirmed missing session.
	degraded bool
	// lookup is closed when the session lookup in flight completes; nil when none is.
	lookup chan struct{}
}

// New creates a Store in the unknown state. Call Initialize to start resolving it.
func New(collab ports.AuthCollaborator, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.SignOutTimeout
	if timeout <= 0 {
		timeout = DefaultSignOutTimeout
	}
	return &Store{
		collab:         collab,
		logger:         logger.With("component", "session_store"),
		metrics:        opts.Metrics,
		signOutTimeout: timeout,
		ready:          make(chan struct{}),
		state:          domainauth.Unknown(),
	}
}

// Initialize starts watching the collaborator and resolves the current session in the
// background. It returns at once; the channel closes when the state is no longer unknown.
// Later calls return the same channel without doing anything.
func (s *Store) Initialize(ctx context.Context) <-chan struct{} {
	s.initOnce.Do(func() {
		stop := s.collab.OnAuthStateChange(s.handleEvent)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			stop()
			return
		}
		s.stopWatch = stop
		s.lookup = make(chan struct{})
		s.mu.Unlock()

		go s.resolve(ctx, false)
	})
	return s.ready
}

// Ready returns the channel that closes once the state has been resolved.
func (s *Store) Ready() <-chan struct{} { return s.ready }

// Current returns a snapshot of the last published state.
func (s *Store) Current() domainauth.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Degraded reports whether the current absent state comes from a failed lookup. The session
// may still exist at the collaborator.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Settled returns a channel that closes once no session lookup is in flight.
func (s *Store) Settled() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookup == nil {
		return settled
	}
	return s.lookup
}

// Refresh looks the session up again when the last lookup failed. A lookup already in flight
// is joined instead of starting another one. The returned channel closes when it completes.
// A lookup result is dropped when an auth event has settled the state in the meantime.
func (s *Store) Refresh(ctx context.Context) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookup != nil {
		return s.lookup
	}
	if !s.degraded || s.closed {
		return settled
	}
	s.lookup = make(chan struct{})
	go s.resolve(ctx, true)
	return s.lookup
}

// Subscribe registers fn for every later state change. Cancelling stops delivery at once,
// including for changes already queued. cancel is safe to call more than once.
func (s *Store) Subscribe(fn func(domainauth.State)) (cancel func()) {
	s.mu.Lock()
	s.nextSubID++
	sub := &subscription{id: s.nextSubID, fn: fn}
	sub.live.Store(true)
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.live.Store(false)
			s.mu.Lock()
			s.subs = slices.DeleteFunc(s.subs, func(other *subscription) bool { return other == sub })
			s.mu.Unlock()
		})
	}
}

// SignOut asks the collaborator to end the session and moves to the anonymous state.
//
// It is a no-op when the session is confirmed absent. An absent state that came from a failed
// lookup still reaches the collaborator, since the session may outlive the outage. The local
// transition happens whatever the collaborator answers: ErrSignOutTimeout is returned when it
// did not answer within the configured bound, and a wrapped ErrAuthCollaboratorUnavailable
// when it failed.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	confirmedAbsent := s.state.Kind() == domainauth.StateAbsent && !s.degraded
	s.mu.Unlock()
	if confirmedAbsent {
		metrics.SignOut(s.metrics, metrics.SignOutMetric{Result: metrics.ResultNoop})
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.signOutTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- s.collab.SignOut(callCtx) }()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		err = callCtx.Err()
	}
	elapsed := time.Since(start)

	s.publish(domainauth.Absent(), false, nil)

	switch {
	case err == nil:
		metrics.SignOut(s.metrics, metrics.SignOutMetric{Result: metrics.ResultSuccess, Duration: elapsed})
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("sign out not acknowledged, signed out locally",
			"timeout", s.signOutTimeout, "elapsed", elapsed)
		metrics.SignOut(s.metrics, metrics.SignOutMetric{Result: metrics.ResultTimeout, Duration: elapsed, Err: err})
		return ErrSignOutTimeout
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		metrics.SignOut(s.metrics, metrics.SignOutMetric{Result: metrics.ResultError, Duration: elapsed, Err: err})
		return fmt.Errorf("sign out: %w", err)
	default:
		s.logger.Warn("sign out failed at collaborator, signed out locally", "error", err)
		metrics.SignOut(s.metrics, metrics.SignOutMetric{Result: metrics.ResultError, Duration: elapsed, Err: err})
		return fmt.Errorf("sign out: %w: %w", ErrAuthCollaboratorUnavailable, err)
	}
}

// Close stops watching the collaborator. Registered subscribers receive nothing further.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// resolve looks the session up. The first lookup only applies while the state is unknown;
// a retry only applies while the state is still degraded.
func (s *Store) resolve(ctx context.Context, retry bool) {
	defer s.finishLookup()

	id, err := s.collab.CurrentSession(ctx)

	var next domainauth.State
	failed := false
	switch {
	case err == nil:
		next = domainauth.Present(id)
	case errors.Is(err, domainauth.ErrNoSession):
		next = domainauth.Absent()
		err = nil
	default:
		err = fmt.Errorf("%w: %w", ErrAuthCollaboratorUnavailable, err)
		s.logger.Warn("could not resolve session, treating visitor as anonymous", "error", err)
		next = domainauth.Absent()
		failed = true
	}
	metrics.SessionResolved(s.metrics, next.Kind().String(), err)

	guard := func() bool { return !s.state.IsResolved() }
	if retry {
		guard = func() bool { return s.degraded }
	}
	if !s.publish(next, failed, guard) {
		s.logger.Debug("discarding stale session lookup", "lookup", next.String())
	}
}

func (s *Store) finishLookup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookup != nil {
		close(s.lookup)
		s.lookup = nil
	}
}

func (s *Store) handleEvent(ev domainauth.Event) {
	s.publish(ev.State(), false, nil)
}

// publish records next as the current state and queues it for delivery. guard, when set, runs
// under the lock and next is dropped when it returns false. degraded is recorded even when
// next equals the current state. It reports whether next was applied.
func (s *Store) publish(next domainauth.State, degraded bool, guard func() bool) bool {
	s.mu.Lock()
	if guard != nil && !guard() {
		s.mu.Unlock()
		return false
	}
	s.degraded = degraded
	prev := s.state
	if prev.Equal(next) {
		s.mu.Unlock()
		return true
	}
	s.state = next
	if next.IsResolved() {
		s.readyOnce.Do(func() { close(s.ready) })
	}
	if s.closed {
		s.mu.Unlock()
		return true
	}
	s.pending = append(s.pending, next)
	startDrain := !s.delivering
	s.delivering = true
	s.mu.Unlock()

	metrics.AuthTransition(s.metrics, prev.Kind().String(), next.Kind().String())
	if startDrain {
		s.drain()
	}
	return true
}

func (s *Store) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 || s.closed {
			s.pending = nil
			s.delivering = false
			s.mu.Unlock()
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		subs := slices.Clone(s.subs)
		s.mu.Unlock()

		for _, sub := range subs {
			if sub.live.Load() {
				s.invoke(sub, next)
			}
		}
	}
}

func (s *Store) invoke(sub *subscription, st domainauth.State) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session subscriber panicked", "subscriber", sub.id, "panic", r)
		}
	}()
	sub.fn(st)
}
