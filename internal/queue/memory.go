package queue

import (
	"context"
	"sync"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

// Memory is an in-process JobQueue for single-instance deployments and
// tests. Channel semantics give the same single-delivery contract as the
// Redis-backed queue.
type Memory struct {
	jobs chan domain.Job

	mu     sync.Mutex
	closed bool
}

// NewMemory creates an in-memory queue with the given buffer size.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 256
	}
	return &Memory{jobs: make(chan domain.Job, size)}
}

// Enqueue adds a job, blocking if the buffer is full.
func (m *Memory) Enqueue(ctx context.Context, job domain.Job) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ErrQueueClosed
	}
	m.mu.Unlock()

	select {
	case m.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a job is available or ctx is cancelled.
func (m *Memory) Dequeue(ctx context.Context) (domain.Job, error) {
	select {
	case job, ok := <-m.jobs:
		if !ok {
			return domain.Job{}, domain.ErrQueueClosed
		}
		return job, nil
	case <-ctx.Done():
		return domain.Job{}, ctx.Err()
	}
}

// Close stops the queue; pending jobs remain consumable until drained.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.jobs)
	}
}

// Compile-time interface check.
var _ domain.JobQueue = (*Memory)(nil)
