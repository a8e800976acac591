package registry

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is a Handle that appends every delivered event under a lock.
type recorder struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (r *recorder) Send(evt domain.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) snapshot() []domain.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.StatusEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestPublishFansOutInOrder(t *testing.T) {
	reg := New(testLogger())

	subs := make([]*recorder, 3)
	for i := range subs {
		subs[i] = &recorder{}
		reg.Subscribe("order-a", subs[i])
	}

	for i := 0; i < 10; i++ {
		reg.Publish(domain.NewRoutingEvent("order-a", 10, fmt.Sprintf("msg-%d", i)))
	}

	for _, s := range subs {
		events := s.snapshot()
		require.Len(t, events, 10)
		for i, evt := range events {
			assert.Equal(t, fmt.Sprintf("msg-%d", i), evt.Message)
		}
	}
}

func TestNoCrossTalkBetweenChannels(t *testing.T) {
	reg := New(testLogger())

	a := &recorder{}
	b := &recorder{}
	reg.Subscribe("order-a", a)
	reg.Subscribe("order-b", b)

	reg.Publish(domain.NewRoutingEvent("order-a", 10, "for a"))

	require.Len(t, a.snapshot(), 1)
	assert.Empty(t, b.snapshot())
}

func TestPublishWithoutSubscribersDiscards(t *testing.T) {
	reg := New(testLogger())

	reg.Publish(domain.NewRoutingEvent("order-a", 10, "dropped"))

	late := &recorder{}
	reg.Subscribe("order-a", late)
	reg.Publish(domain.NewRoutingEvent("order-a", 30, "delivered"))

	events := late.snapshot()
	require.Len(t, events, 1, "no replay for late subscribers")
	assert.Equal(t, "delivered", events[0].Message)
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	reg := New(testLogger())

	rec := &recorder{}
	sub := reg.Subscribe("order-a", rec)
	reg.Publish(domain.NewRoutingEvent("order-a", 10, "one"))

	reg.Unsubscribe(sub)
	reg.Unsubscribe(sub) // second call is a no-op
	reg.Publish(domain.NewRoutingEvent("order-a", 30, "two"))

	require.Len(t, rec.snapshot(), 1)
	assert.Equal(t, 0, reg.SubscriberCount("order-a"))
}

func TestChannelTeardownRequiresTerminalAndEmpty(t *testing.T) {
	reg := New(testLogger())

	rec := &recorder{}
	sub := reg.Subscribe("order-a", rec)

	// Terminal with a live subscriber: channel stays.
	reg.Publish(domain.NewConfirmedEvent("order-a", "raydium", "TX-1", 1))
	assert.Equal(t, 1, reg.ChannelCount())

	// Last subscriber leaves after terminal: channel goes.
	reg.Unsubscribe(sub)
	assert.Equal(t, 0, reg.ChannelCount())
}

func TestEmptyNonTerminalChannelSurvives(t *testing.T) {
	reg := New(testLogger())

	rec := &recorder{}
	sub := reg.Subscribe("order-a", rec)
	reg.Unsubscribe(sub)

	// Not terminal yet, so a late-attaching client must still find a home.
	assert.Equal(t, 1, reg.ChannelCount())

	reg.MarkTerminal("order-a")
	assert.Equal(t, 0, reg.ChannelCount())
}

func TestConcurrentSubscribePublishUnsubscribe(t *testing.T) {
	reg := New(testLogger())

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		orderID := fmt.Sprintf("order-%d", w%4)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				rec := &recorder{}
				sub := reg.Subscribe(orderID, rec)
				reg.Publish(domain.NewRoutingEvent(orderID, 10, "tick"))
				reg.Unsubscribe(sub)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		assert.Equal(t, 0, reg.SubscriberCount(fmt.Sprintf("order-%d", i)))
	}
}

func TestOrderingUnderConcurrentPublishers(t *testing.T) {
	// Two subscribers on the same channel must observe the same relative
	// order even when publishes race.
	reg := New(testLogger())

	a := &recorder{}
	b := &recorder{}
	reg.Subscribe("order-a", a)
	reg.Subscribe("order-a", b)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				reg.Publish(domain.NewRoutingEvent("order-a", 10, fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	ea, eb := a.snapshot(), b.snapshot()
	require.Len(t, ea, 200)
	require.Len(t, eb, 200)
	for i := range ea {
		assert.Equal(t, ea[i].Message, eb[i].Message, "divergent order at index %d", i)
	}
}
