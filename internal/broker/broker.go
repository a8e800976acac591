// Package broker distributes status events from workers to subscribers. With
// an external bus configured, events travel worker → bus channel
// `order:{id}` → bridge → local registry, so every instance sees every
// event exactly once. Without a bus, events go straight into the in-process
// registry.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/swapstream/internal/domain"
	"github.com/alanyoungcy/swapstream/internal/registry"
)

// Broker satisfies the per-channel ordered fanout contract regardless of
// backing: the bus preserves publish order per channel, and the registry
// preserves it per subscriber.
type Broker struct {
	registry *registry.Registry
	bus      domain.EventBus // nil for single-instance deployments
	logger   *slog.Logger
}

// New creates a Broker. bus may be nil, in which case events are delivered
// only to the local registry.
func New(reg *registry.Registry, bus domain.EventBus, logger *slog.Logger) *Broker {
	return &Broker{
		registry: reg,
		bus:      bus,
		logger:   logger.With(slog.String("component", "broker")),
	}
}

// Publish sends one status event to every current subscriber of the order's
// channel. With a bus configured the local registry is fed by Bridge, not
// here, so local subscribers never see duplicates.
func (b *Broker) Publish(ctx context.Context, evt domain.StatusEvent) error {
	if b.bus == nil {
		b.registry.Publish(evt)
		return nil
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("broker: marshal event: %w", err)
	}
	if err := b.bus.Publish(ctx, domain.OrderChannel(evt.OrderID), payload); err != nil {
		return fmt.Errorf("broker: publish %s: %w", evt.OrderID, err)
	}
	return nil
}

// Bridge subscribes to every order channel on the bus and forwards events
// into the local registry. It blocks until ctx is cancelled. Run it in
// exactly one goroutine per process when a bus is configured.
func (b *Broker) Bridge(ctx context.Context) error {
	if b.bus == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	msgCh, err := b.bus.Subscribe(ctx, domain.OrderChannel("*"))
	if err != nil {
		return fmt.Errorf("broker: subscribe order channels: %w", err)
	}
	b.logger.Info("bridge subscribed", slog.String("pattern", domain.OrderChannel("*")))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgCh:
			if !ok {
				return ctx.Err()
			}
			var evt domain.StatusEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				b.logger.Warn("bridge: dropping malformed event",
					slog.String("error", err.Error()),
				)
				continue
			}
			if evt.OrderID == "" {
				b.logger.Warn("bridge: dropping event without order id",
					slog.String("type", string(evt.Type)),
				)
				continue
			}
			b.registry.Publish(evt)
		}
	}
}
