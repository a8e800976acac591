// Package queue implements the order job intake: producers enqueue one job
// per order, workers dequeue with single delivery per job.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

// dequeueBlock bounds each BRPOP so Dequeue can observe context
// cancellation between polls.
const dequeueBlock = 2 * time.Second

// Redis is a JobQueue backed by a Redis list. LPUSH/BRPOP gives FIFO order
// and at-most-one consumer per job.
type Redis struct {
	rdb *redis.Client
	key string
}

// NewRedis creates a Redis-backed queue using the given list key, e.g.
// "queue:orders".
func NewRedis(rdb *redis.Client, key string) *Redis {
	return &Redis{rdb: rdb, key: key}
}

// Enqueue serializes the job and pushes it onto the list.
func (q *Redis) Enqueue(ctx context.Context, job domain.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", job.ID, err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", q.key, err)
	}
	return nil
}

// Dequeue blocks until a job is available or ctx is cancelled.
func (q *Redis) Dequeue(ctx context.Context) (domain.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Job{}, err
		}

		res, err := q.rdb.BRPop(ctx, dequeueBlock, q.key).Result()
		if err == redis.Nil {
			continue // timed out, poll again
		}
		if err != nil {
			if ctx.Err() != nil {
				return domain.Job{}, ctx.Err()
			}
			return domain.Job{}, fmt.Errorf("queue: dequeue %s: %w", q.key, err)
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}

		var job domain.Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.Job{}, fmt.Errorf("queue: unmarshal job: %w", err)
		}
		return job, nil
	}
}

// Compile-time interface check.
var _ domain.JobQueue = (*Redis)(nil)
