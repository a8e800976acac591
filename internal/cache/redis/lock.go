package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

// unlockScript deletes the lock only if the caller still owns it, so an
// expired lock taken over by another worker is never released by the
// original holder.
var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// LockManager implements cross-instance mutual exclusion with SET NX and a
// TTL. A lock that is never released expires on its own.
type LockManager struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewLockManager creates a Redis-backed lock manager.
func NewLockManager(client *Client, logger *slog.Logger) *LockManager {
	return &LockManager{
		rdb:    client.Underlying(),
		logger: logger.With(slog.String("component", "lock_manager")),
	}
}

// Acquire takes the named lock for at most ttl. It returns domain.ErrLockHeld
// when another holder owns the lock. The returned unlock releases the lock
// early; releasing after expiry is a no-op.
func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lockKey := "lock:" + key

	ok, err := m.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	unlock := func() {
		// Use a fresh context so the lock is released even during shutdown.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, m.rdb, []string{lockKey}, token).Err(); err != nil {
			m.logger.Warn("failed to release lock",
				slog.String("key", lockKey),
				slog.String("error", err.Error()),
			)
		}
	}
	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
