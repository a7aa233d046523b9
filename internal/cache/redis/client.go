// Package redis backs the pricer's shared state that outlives a single pass:
// the persisted price-list document, the price broadcast channel consumed by
// trading bots, and the sliding-window limiter guarding the external market
// quota.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password authenticates the connection; empty for unauthenticated
	// servers.
	Password string

	// DB selects the logical database. The price list, broadcast channel,
	// and limiter keys all live in the same database.
	DB int

	// PoolSize bounds concurrent connections; pricing passes publish from
	// many workers at once.
	PoolSize int

	// MaxRetries is the per-command retry budget.
	MaxRetries int

	// TLSEnabled dials with TLS (managed Redis providers).
	TLSEnabled bool
}

// Client wraps a go-redis Client shared by the price-list cache, the event
// bus, and the rate limiter.
type Client struct {
	rdb *redis.Client
}

// New creates a Redis client and pings it once to verify connectivity. The
// pricer cannot run without Redis: emitted prices would have nowhere to go.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client for the sibling stores that need
// direct driver access (hash ops, pub/sub, script eval).
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
