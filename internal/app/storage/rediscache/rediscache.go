// Package rediscache implements storage.CacheStore over Redis, grounded on
// streamspace-dev-streamspace/api/internal/cache/cache.go's connection-pool
// config shape and client construction pattern (adapted to the go-redis/v8
// client this module's go.mod carries, and to the CacheStore contract's
// sorted-set operations rather than that file's JSON get/set helpers).
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/trendforge/ingest/internal/app/storage"
)

// Config configures the underlying connection pool.
type Config struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
}

// Cache is a Redis-backed storage.CacheStore.
type Cache struct {
	client *redis.Client
}

var _ storage.CacheStore = (*Cache)(nil)

// New opens a pooled Redis client. The connection is lazy; call Ping to
// verify reachability before relying on it.
func New(cfg Config) *Cache {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 25
	}
	minIdle := cfg.MinIdleConns
	if minIdle <= 0 {
		minIdle = 5
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: minIdle,
		DialTimeout:  dialTimeout,
		MaxRetries:   3,
	})
	return &Cache{client: client}
}

// Ping verifies the connection is reachable. The control surface's /health
// handler does not call it.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Options exposes the resolved client configuration, mainly for tests that
// assert New applied the expected pool defaults.
func (c *Cache) Options() *redis.Options {
	return c.client.Options()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *Cache) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *Cache) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.client.ZAdd(ctx, key, &redis.Z{Score: score, Member: member}).Err()
}

func (c *Cache) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	return c.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err()
}

func (c *Cache) ZCard(ctx context.Context, key string) (int64, error) {
	return c.client.ZCard(ctx, key).Result()
}

func formatScore(f float64) string {
	return fmt.Sprintf("%f", f)
}
