package executor

import (
	"time"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

// DefaultBackoffBase is the first retry delay when none is configured.
const DefaultBackoffBase = 500 * time.Millisecond

// Decision is the outcome of consulting the retry policy after a failed
// submission attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// RetryPolicy decides whether a failed submission attempt is retried and
// how long to back off first. Only transient failures are retried, and only
// while attempts remain; delay doubles per attempt.
type RetryPolicy struct {
	base time.Duration
}

// NewRetryPolicy creates a policy with the given base delay. A non-positive
// base falls back to DefaultBackoffBase.
func NewRetryPolicy(base time.Duration) *RetryPolicy {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	return &RetryPolicy{base: base}
}

// Decide returns the retry decision for the given attempt (1-based).
func (p *RetryPolicy) Decide(attempt, maxAttempts int, kind domain.FailureKind) Decision {
	if !kind.Retryable() || attempt >= maxAttempts {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.BackoffDelay(attempt)}
}

// BackoffDelay returns base * 2^(attempt-1) for attempt >= 1.
func (p *RetryPolicy) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.base << uint(attempt-1)
}
