package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Job is one unit of queued execution work corresponding to one order. The
// queue's single-delivery contract guarantees at most one active worker per
// job.
type Job struct {
	ID          string          `json:"jobId"`
	OrderID     string          `json:"orderId"`
	TokenIn     string          `json:"tokenIn"`
	TokenOut    string          `json:"tokenOut"`
	Amount      decimal.Decimal `json:"amount"`
	SlippageBps decimal.Decimal `json:"slippageBps"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
}

// JobQueue is the intake boundary between order creation and execution.
// Dequeue blocks until a job is available or the context is cancelled.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
}
