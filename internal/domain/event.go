package domain

import (
	"fmt"
	"time"
)

// EventType discriminates the StatusEvent variants delivered to subscribers.
// The set is closed: every value a client can observe is listed here.
type EventType string

const (
	EventConnection      EventType = "connection"
	EventSubscribed      EventType = "subscribed"
	EventRouting         EventType = "routing"
	EventBuilding        EventType = "building"
	EventSubmitted       EventType = "submitted"
	EventConfirmed       EventType = "confirmed"
	EventExecutionFailed EventType = "execution-failed"
	EventRetryPending    EventType = "retry-pending"
	EventFailed          EventType = "failed"
)

// StatusEvent is an immutable status update for one order. Events are
// constructed once by the producing component and fanned out by value to
// every subscriber. Progress is present only on phase and terminal events.
type StatusEvent struct {
	Type             EventType `json:"type"`
	OrderID          string    `json:"orderId"`
	Message          string    `json:"message,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	Progress         *int      `json:"progress,omitempty"`
	Dex              string    `json:"dex,omitempty"`
	Attempt          int       `json:"attempt,omitempty"`
	MaxAttempts      int       `json:"maxAttempts,omitempty"`
	Transient        *bool     `json:"transient,omitempty"`
	RetriesRemaining *int      `json:"retriesRemaining,omitempty"`
	DelayMs          int64     `json:"delayMs,omitempty"`
	NextAttempt      int       `json:"nextAttempt,omitempty"`
	TxHash           string    `json:"txHash,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// IsTerminal reports whether the event closes the order's stream.
func (e StatusEvent) IsTerminal() bool {
	return e.Type == EventConfirmed || e.Type == EventFailed
}

// OrderChannel returns the pub/sub channel name for an order. The broker
// must preserve publish order within one channel regardless of backing.
func OrderChannel(orderID string) string {
	return "order:" + orderID
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// NewConnectionEvent acknowledges a freshly accepted streaming connection.
// It is always the first event a client observes.
func NewConnectionEvent(orderID string) StatusEvent {
	return StatusEvent{
		Type:      EventConnection,
		OrderID:   orderID,
		Message:   "Connected to order status stream",
		Timestamp: time.Now().UTC(),
	}
}

// NewSubscribedEvent confirms the subscription, always second on the wire.
func NewSubscribedEvent(orderID string) StatusEvent {
	return StatusEvent{
		Type:      EventSubscribed,
		OrderID:   orderID,
		Message:   fmt.Sprintf("Subscribed to real-time updates for order %s", orderID),
		Timestamp: time.Now().UTC(),
	}
}

// NewRoutingEvent reports quote-aggregation progress (10-30).
func NewRoutingEvent(orderID string, progress int, message string) StatusEvent {
	return StatusEvent{
		Type:      EventRouting,
		OrderID:   orderID,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Progress:  intPtr(progress),
	}
}

// NewBuildingEvent reports transaction-construction progress (50-70) against
// the chosen venue.
func NewBuildingEvent(orderID string, progress int, dex, message string) StatusEvent {
	return StatusEvent{
		Type:      EventBuilding,
		OrderID:   orderID,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Progress:  intPtr(progress),
		Dex:       dex,
	}
}

// NewSubmittedEvent marks the start of submission attempt n of maxAttempts.
func NewSubmittedEvent(orderID string, attempt, maxAttempts int) StatusEvent {
	return StatusEvent{
		Type:        EventSubmitted,
		OrderID:     orderID,
		Message:     fmt.Sprintf("Submitting transaction (attempt %d/%d)...", attempt, maxAttempts),
		Timestamp:   time.Now().UTC(),
		Progress:    intPtr(80),
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
	}
}

// NewConfirmedEvent is the successful terminal event.
func NewConfirmedEvent(orderID, dex, txHash string, attempt int) StatusEvent {
	return StatusEvent{
		Type:      EventConfirmed,
		OrderID:   orderID,
		Message:   "Order successfully executed",
		Timestamp: time.Now().UTC(),
		Progress:  intPtr(100),
		Dex:       dex,
		Attempt:   attempt,
		TxHash:    txHash,
	}
}

// NewExecutionFailedEvent reports a failed submission attempt. It is not
// terminal; the retry policy decides what follows.
func NewExecutionFailedEvent(orderID string, attempt, maxAttempts int, transient bool, cause string) StatusEvent {
	return StatusEvent{
		Type:             EventExecutionFailed,
		OrderID:          orderID,
		Message:          fmt.Sprintf("Attempt %d failed: %s", attempt, cause),
		Timestamp:        time.Now().UTC(),
		Attempt:          attempt,
		MaxAttempts:      maxAttempts,
		Transient:        boolPtr(transient),
		RetriesRemaining: intPtr(maxAttempts - attempt),
		Error:            cause,
	}
}

// NewRetryPendingEvent announces the backoff before the next attempt.
func NewRetryPendingEvent(orderID string, delay time.Duration, nextAttempt int) StatusEvent {
	return StatusEvent{
		Type:        EventRetryPending,
		OrderID:     orderID,
		Message:     fmt.Sprintf("Retrying in %dms...", delay.Milliseconds()),
		Timestamp:   time.Now().UTC(),
		DelayMs:     delay.Milliseconds(),
		NextAttempt: nextAttempt,
	}
}

// NewFailedEvent is the unsuccessful terminal event.
func NewFailedEvent(orderID, cause string, totalAttempts int) StatusEvent {
	return StatusEvent{
		Type:      EventFailed,
		OrderID:   orderID,
		Message:   fmt.Sprintf("Order processing failed: %s", cause),
		Timestamp: time.Now().UTC(),
		Attempt:   totalAttempts,
		Error:     cause,
	}
}
