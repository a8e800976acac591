package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidOrder = errors.New("invalid order parameters")
	ErrNoQuotes     = errors.New("no valid quotes received from any source")
	ErrLockHeld     = errors.New("lock already held")
	ErrQueueClosed  = errors.New("queue closed")
)

// FailureKind classifies an execution failure for the retry policy.
type FailureKind int

const (
	// FailureTransient covers network timeouts, rate limiting, and node
	// congestion; eligible for retry.
	FailureTransient FailureKind = iota
	// FailureRejected covers on-chain rejection, invalid transactions, and
	// slippage violations; never retried.
	FailureRejected
	// FailureTimeout marks a bounded wait exceeding its budget; treated as
	// transient unless the order is already terminal.
	FailureTimeout
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailureRejected:
		return "rejected"
	case FailureTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Retryable reports whether the retry policy may re-attempt after this kind
// of failure.
func (k FailureKind) Retryable() bool {
	return k == FailureTransient || k == FailureTimeout
}

// ExecError is a classified execution failure raised by a liquidity source
// or a phase of the state machine.
type ExecError struct {
	Kind FailureKind
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// NewTransientError wraps err as a retryable execution failure.
func NewTransientError(err error) *ExecError {
	return &ExecError{Kind: FailureTransient, Err: err}
}

// NewRejectedError wraps err as a non-retryable execution failure.
func NewRejectedError(err error) *ExecError {
	return &ExecError{Kind: FailureRejected, Err: err}
}

// Classify maps an arbitrary error to a FailureKind. Context deadline
// expiry counts as a timeout; unclassified errors are treated as rejections
// so that unknown failure modes are never retried blindly.
func Classify(err error) FailureKind {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureRejected
}

// IsTransient reports whether err is eligible for retry.
func IsTransient(err error) bool {
	return Classify(err).Retryable()
}
