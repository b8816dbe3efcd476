package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/target/bookshelf/internal/adapters/events"
	domainauth "github.com/target/bookshelf/internal/domain/auth"
	apperrors "github.com/target/bookshelf/internal/errors"
	"github.com/target/bookshelf/internal/ports"
)

// DefaultEventsChannel is the Pub/Sub channel auth events travel on.
const DefaultEventsChannel = "bookshelf:auth-events"

var _ ports.AuthEventBus = (*EventBus)(nil)

// EventBus publishes auth events on a Redis channel and dispatches what it receives to local
// subscribers, so every instance behind the load balancer sees every sign-in and sign-out.
type EventBus struct {
	client  redis.UniversalClient
	channel string
	local   *events.LocalBus
	logger  *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// EventBusOptions configures an EventBus.
type EventBusOptions struct {
	Channel string
	Logger  *slog.Logger
}

// NewEventBus creates a bus. Call Start before relying on delivery.
func NewEventBus(client redis.UniversalClient, opts EventBusOptions) *EventBus {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	channel := opts.Channel
	if channel == "" {
		channel = DefaultEventsChannel
	}
	return &EventBus{
		client:  client,
		channel: channel,
		local:   events.NewLocalBus(logger),
		logger:  logger.With("component", "redis_event_bus", "channel", channel),
	}
}

// Start subscribes to the channel and begins dispatching. It returns once the subscription is
// confirmed by the server.
func (b *EventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return errors.New("event bus already started")
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return apperrors.Unavailable(err, "subscribe to auth events")
	}
	b.pubsub = pubsub
	b.done = make(chan struct{})
	go b.listen(pubsub.Channel(), b.done)
	return nil
}

func (b *EventBus) listen(ch <-chan *redis.Message, done chan<- struct{}) {
	defer close(done)
	for msg := range ch {
		var ev domainauth.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.logger.Warn("dropping malformed auth event", "error", err)
			continue
		}
		b.local.Dispatch(ev)
	}
}

// Publish sends ev to every instance. When Redis cannot be reached the event is still
// delivered to this instance's subscribers and the error is returned.
func (b *EventBus) Publish(ctx context.Context, ev domainauth.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal auth event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Warn("publish failed, delivering locally only", "kind", ev.Kind, "error", err)
		b.local.Dispatch(ev)
		return apperrors.Unavailable(err, "publish auth event")
	}
	return nil
}

// Subscribe registers fn for events of sessionID, or every event when sessionID is empty.
func (b *EventBus) Subscribe(sessionID string, fn func(domainauth.Event)) func() {
	return b.local.Subscribe(sessionID, fn)
}

// Close unsubscribes and waits for the dispatch loop to exit.
func (b *EventBus) Close() error {
	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()
	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}
