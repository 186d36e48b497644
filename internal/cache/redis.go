// Package cache provides the shared Redis client used by the rate limiter
// store and the readiness probe. GetWord/SetWord are key/value helpers for
// caching words; the corpus store does not call them. There is no
// cross-process broadcast fan-out here: the broadcast fabric
// (internal/broadcast) is in-process only.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nntndfrk/alias-game/internal/logging"
)

// Client wraps a *redis.Client. A nil *Client is valid and every method on it
// becomes a no-op, matching how callers behave when REDIS_ENABLED=false.
type Client struct {
	rdb *redis.Client
}

// Connect dials addr and verifies the connection with a PING before
// returning. Pass an empty addr to get a nil *Client (single-instance mode).
func Connect(addr, password string) (*Client, error) {
	if addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	logging.Info(context.Background(), "connected to redis")
	return &Client{rdb: rdb}, nil
}

// Raw returns the underlying *redis.Client, for components (the rate
// limiter's ulule/limiter store) that need the concrete type.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}

// Ping reports whether Redis is reachable. Used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// GetWord fetches a cached word payload by cache key, returning ("", false)
// on a miss or when Redis is disabled.
func (c *Client) GetWord(ctx context.Context, key string) (string, bool) {
	if c == nil || c.rdb == nil {
		return "", false
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// SetWord caches a word payload under key with the given TTL. Errors are
// swallowed: the cache is an optimization, not a source of truth.
func (c *Client) SetWord(ctx context.Context, key, value string, ttl time.Duration) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		logging.Warn(ctx, "corpus cache write failed")
	}
}
