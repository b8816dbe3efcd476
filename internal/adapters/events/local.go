// Package events provides the in-process auth event bus.
package events

import (
	"context"
	"log/slog"
	"sync"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
	"github.com/target/bookshelf/internal/ports"
)

var _ ports.AuthEventBus = (*LocalBus)(nil)

type handler struct {
	sessionID string
	fn        func(domainauth.Event)
}

// LocalBus delivers events synchronously to subscribers in this process.
// Handlers for a session run before catch-all handlers, each group in registration order.
type LocalBus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[uint64]handler
	order    []uint64
	nextID   uint64
}

// NewLocalBus creates an empty bus. A nil logger uses slog.Default().
func NewLocalBus(logger *slog.Logger) *LocalBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBus{
		logger:   logger.With("component", "auth_events"),
		handlers: make(map[uint64]handler),
	}
}

// Publish delivers ev to matching subscribers. It never fails.
func (b *LocalBus) Publish(_ context.Context, ev domainauth.Event) error {
	b.Dispatch(ev)
	return nil
}

// Dispatch delivers ev to matching subscribers. A panicking handler is logged and skipped.
func (b *LocalBus) Dispatch(ev domainauth.Event) {
	b.mu.RLock()
	var scoped, global []func(domainauth.Event)
	for _, id := range b.order {
		h, ok := b.handlers[id]
		switch {
		case !ok:
		case h.sessionID == "":
			global = append(global, h.fn)
		case h.sessionID == ev.SessionID:
			scoped = append(scoped, h.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range append(scoped, global...) {
		b.invoke(fn, ev)
	}
}

func (b *LocalBus) invoke(fn func(domainauth.Event), ev domainauth.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("auth event handler panicked", "kind", ev.Kind, "panic", r)
		}
	}()
	fn(ev)
}

// Subscribe registers fn for events of sessionID, or every event when sessionID is empty.
func (b *LocalBus) Subscribe(sessionID string, fn func(domainauth.Event)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = handler{sessionID: sessionID, fn: fn}
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, other := range b.order {
				if other == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Len reports the number of live subscriptions.
func (b *LocalBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
