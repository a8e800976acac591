// Package redis wraps the Redis connections used for the status event bus,
// the cross-instance execution locks, and the order job queue.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for Redis.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// New creates a Redis client and verifies connectivity with a ping.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// Underlying exposes the raw go-redis client for components that need it
// directly, such as the job queue.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

// Close shuts down the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
