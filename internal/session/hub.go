package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/target/bookshelf/internal/observability/metrics"
	"github.com/target/bookshelf/internal/ports"
)

// HubOptions configures a Hub.
type HubOptions struct {
	// Collaborators binds the authentication service to one browser session.
	Collaborators func(sessionID string) ports.AuthCollaborator
	// Store is applied to every Store the hub creates.
	Store Options
}

type hubEntry struct {
	store *Store
	refs  int
}

// Hub shares one Store between every open tab of the same browser session.
// Stores are created on first Acquire and closed when the last holder releases them.
type Hub struct {
	collaborators func(string) ports.AuthCollaborator
	storeOpts     Options
	logger        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*hubEntry
	closed  bool
}

// NewHub creates an empty Hub.
func NewHub(opts HubOptions) *Hub {
	logger := opts.Store.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		collaborators: opts.Collaborators,
		storeOpts:     opts.Store,
		logger:        logger.With("component", "session_hub"),
		ctx:           ctx,
		cancel:        cancel,
		entries:       make(map[string]*hubEntry),
	}
}

// Acquire returns the initialized Store for sessionID and a release func that must be called
// when the caller is done with it. release is safe to call more than once. A held store whose
// last lookup failed looks the session up again.
func (h *Hub) Acquire(sessionID string) (*Store, func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		// Detached store so callers still get a usable, resolved answer during shutdown.
		store := New(h.collaborators(sessionID), h.storeOpts)
		store.Initialize(h.ctx)
		return store, store.Close
	}
	entry, ok := h.entries[sessionID]
	if !ok {
		entry = &hubEntry{store: New(h.collaborators(sessionID), h.storeOpts)}
		h.entries[sessionID] = entry
	}
	entry.refs++
	n := len(h.entries)
	h.mu.Unlock()

	if !ok {
		metrics.HubSessions(h.storeOpts.Metrics, n)
	}
	entry.store.Initialize(h.ctx)
	// A store degraded by a failed lookup retries on the next acquire.
	entry.store.Refresh(h.ctx)

	var once sync.Once
	return entry.store, func() {
		once.Do(func() { h.release(sessionID, entry) })
	}
}

func (h *Hub) release(sessionID string, entry *hubEntry) {
	h.mu.Lock()
	entry.refs--
	if entry.refs > 0 {
		h.mu.Unlock()
		return
	}
	if h.entries[sessionID] == entry {
		delete(h.entries, sessionID)
	}
	n := len(h.entries)
	h.mu.Unlock()

	entry.store.Close()
	metrics.HubSessions(h.storeOpts.Metrics, n)
}

// SignOut signs sessionID out through its shared Store so every open tab observes it.
func (h *Hub) SignOut(ctx context.Context, sessionID string) error {
	store, release := h.Acquire(sessionID)
	defer release()
	return store.SignOut(ctx)
}

// Len returns the number of sessions currently held.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Close closes every held Store and cancels outstanding lookups.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	entries := h.entries
	h.entries = make(map[string]*hubEntry)
	h.mu.Unlock()

	h.cancel()
	for _, entry := range entries {
		entry.store.Close()
	}
	h.logger.Debug("session hub closed", "sessions", len(entries))
}
