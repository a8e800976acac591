package domain

import (
	"context"
	"time"
)

// EventBus provides pub/sub fanout between processes. Within one channel the
// bus preserves publish order; delivery is at-most-once with no buffering
// for absent subscribers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a read-only channel of raw payloads. Glob patterns
	// (e.g. "order:*") subscribe to every matching channel. The returned
	// channel closes when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides distributed locking, used to enforce one active
// worker per order across instances.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
