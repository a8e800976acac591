package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

// EventBus distributes status events across instances over Redis pub/sub.
// Publishers in any process reach subscribers in every process, which is what
// lets a worker drive websocket clients attached to a different server.
type EventBus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewEventBus creates a Redis-backed event bus.
func NewEventBus(client *Client, logger *slog.Logger) *EventBus {
	return &EventBus{
		rdb:    client.Underlying(),
		logger: logger.With(slog.String("component", "event_bus")),
	}
}

// Publish sends payload to every subscriber of channel. Delivery is
// fire-and-forget: Redis pub/sub does not retain messages for absent
// subscribers.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of raw payloads published to the given channel.
// Channels containing a '*' are treated as glob patterns (PSUBSCRIBE). The
// returned channel closes when ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation so callers know delivery has
	// started before they publish.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					b.logger.WarnContext(ctx, "subscriber lagging, dropping message",
						slog.String("channel", msg.Channel),
					)
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
