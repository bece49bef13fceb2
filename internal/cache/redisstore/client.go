// Package redisstore implements the external cache backend on Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/hazard-aggregator/internal/cache"
	"github.com/mohammed-shakir/hazard-aggregator/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

var _ cache.Backend = (*Client)(nil)

func defaults(ro *redis.Options) {
	ro.PoolSize = 32
	ro.MinIdleConns = 2
	ro.DialTimeout = 2 * time.Second
	ro.ReadTimeout = 1 * time.Second
	ro.WriteTimeout = 1 * time.Second
	ro.MaintNotificationsConfig = &maintnotifications.Config{
		Mode: maintnotifications.ModeDisabled,
	}
}

// New connects to a Redis server at addr and verifies it with PING.
func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	ro := &redis.Options{Addr: addr}
	defaults(ro)
	return connect(ctx, ro, opts)
}

// NewFromURL accepts redis:// and rediss:// URLs, including credentials and
// database number.
func NewFromURL(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	parsed, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	ro := &redis.Options{}
	defaults(ro)
	ro.Addr = parsed.Addr
	ro.Username = parsed.Username
	ro.Password = parsed.Password
	ro.DB = parsed.DB
	ro.TLSConfig = parsed.TLSConfig
	return connect(ctx, ro, opts)
}

func connect(ctx context.Context, ro *redis.Options, opts []Option) (*Client, error) {
	for _, f := range opts {
		f(ro)
	}
	c := &Client{rdb: redis.NewClient(ro)}
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCacheOp("get", nil, time.Since(start).Seconds())
		return nil, false, nil
	}
	observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return nil, false, fmt.Errorf("redis GET %q: %w", key, err)
	}
	return b, true, nil
}

func (c *Client) SetEx(ctx context.Context, key string, ttl time.Duration, val []byte) error {
	if ttl <= 0 {
		return fmt.Errorf("redis SETEX %q: non-positive ttl %s", key, ttl)
	}
	start := time.Now()
	err := c.rdb.SetEx(ctx, key, val, ttl).Err()
	observability.ObserveCacheOp("setex", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SETEX %q: %w", key, err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
