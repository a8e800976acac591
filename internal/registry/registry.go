// Package registry implements the per-order status channel registry: it maps
// an order ID to the set of live subscriber handles and fans out published
// events to them in publish order.
package registry

import (
	"log/slog"
	"sync"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

// Handle receives events for one subscription. Implementations must not
// block for long inside Send; the gateway backs it with a buffered channel.
type Handle interface {
	Send(evt domain.StatusEvent)
}

// Subscription identifies one registered handle so it can be removed again.
type Subscription struct {
	orderID string
	handle  Handle
	seq     uint64
}

// OrderID returns the channel this subscription is attached to.
func (s *Subscription) OrderID() string { return s.orderID }

// channel owns the ordered subscriber set for one order. Each channel has
// its own lock so unrelated orders never serialize on each other.
type channel struct {
	mu       sync.Mutex
	subs     []*Subscription
	terminal bool
}

// Registry is the shared subscriber registry. Subscribe, Unsubscribe, and
// Publish are safe under arbitrary interleaving from worker and connection
// goroutines. A channel is created lazily on first subscribe or first
// publish and destroyed once its order is terminal and no subscribers
// remain.
type Registry struct {
	mu       sync.Mutex
	channels map[string]*channel
	nextSeq  uint64
	logger   *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		channels: make(map[string]*channel),
		logger:   logger.With(slog.String("component", "registry")),
	}
}

func (r *Registry) channelFor(orderID string) *channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[orderID]
	if !ok {
		ch = &channel{}
		r.channels[orderID] = ch
	}
	return ch
}

// Subscribe registers a handle for an order's channel and returns the
// subscription token needed to remove it. A subscriber only observes events
// published after it joined; there is no replay.
func (r *Registry) Subscribe(orderID string, h Handle) *Subscription {
	ch := r.channelFor(orderID)

	r.mu.Lock()
	r.nextSeq++
	sub := &Subscription{orderID: orderID, handle: h, seq: r.nextSeq}
	r.mu.Unlock()

	ch.mu.Lock()
	ch.subs = append(ch.subs, sub)
	count := len(ch.subs)
	ch.mu.Unlock()

	r.logger.Debug("subscriber registered",
		slog.String("order_id", orderID),
		slog.Int("subscribers", count),
	)
	return sub
}

// Unsubscribe removes a subscription. It is idempotent: removing a
// subscription twice, or one whose channel is already gone, is a no-op.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	ch, ok := r.channels[sub.orderID]
	r.mu.Unlock()
	if !ok {
		return
	}

	ch.mu.Lock()
	for i, s := range ch.subs {
		if s.seq == sub.seq {
			ch.subs = append(ch.subs[:i], ch.subs[i+1:]...)
			break
		}
	}
	empty := len(ch.subs) == 0
	terminal := ch.terminal
	ch.mu.Unlock()

	if empty && terminal {
		r.remove(sub.orderID, ch)
	}
}

// Publish delivers evt to every handle currently subscribed to the order's
// channel, in registration order. Two publishes to the same channel are
// observed by every subscriber in the same relative order because delivery
// happens under the channel lock. Publishing to a channel with no
// subscribers discards the event. Terminal events mark the channel for
// teardown.
func (r *Registry) Publish(evt domain.StatusEvent) {
	ch := r.channelFor(evt.OrderID)

	ch.mu.Lock()
	for _, s := range ch.subs {
		s.handle.Send(evt)
	}
	if evt.IsTerminal() {
		ch.terminal = true
	}
	empty := len(ch.subs) == 0
	terminal := ch.terminal
	ch.mu.Unlock()

	if empty && terminal {
		r.remove(evt.OrderID, ch)
	}
}

// MarkTerminal flags an order's channel so it is torn down once the last
// subscriber leaves, without publishing an event.
func (r *Registry) MarkTerminal(orderID string) {
	r.mu.Lock()
	ch, ok := r.channels[orderID]
	r.mu.Unlock()
	if !ok {
		return
	}

	ch.mu.Lock()
	ch.terminal = true
	empty := len(ch.subs) == 0
	ch.mu.Unlock()

	if empty {
		r.remove(orderID, ch)
	}
}

func (r *Registry) remove(orderID string, ch *channel) {
	r.mu.Lock()
	if cur, ok := r.channels[orderID]; ok && cur == ch {
		delete(r.channels, orderID)
	}
	r.mu.Unlock()
	r.logger.Debug("channel torn down", slog.String("order_id", orderID))
}

// SubscriberCount returns the number of live subscriptions for an order.
func (r *Registry) SubscriberCount(orderID string) int {
	r.mu.Lock()
	ch, ok := r.channels[orderID]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

// ChannelCount returns the number of live channels, terminal or not.
func (r *Registry) ChannelCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}
