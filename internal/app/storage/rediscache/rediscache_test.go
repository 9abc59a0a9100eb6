package rediscache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/internal/app/storage/rediscache"
)

func TestNewAppliesPoolDefaults(t *testing.T) {
	c := rediscache.New(rediscache.Config{Host: "localhost", Port: "6379"})
	t.Cleanup(func() { _ = c.Close() })

	opts := c.Options()
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 25, opts.PoolSize)
	require.Equal(t, 5, opts.MinIdleConns)
	require.Equal(t, 5*time.Second, opts.DialTimeout)
}

func TestNewHonorsExplicitPoolSettings(t *testing.T) {
	c := rediscache.New(rediscache.Config{
		Host: "localhost", Port: "6379",
		PoolSize: 50, MinIdleConns: 10, DialTimeout: 2 * time.Second,
	})
	t.Cleanup(func() { _ = c.Close() })

	opts := c.Options()
	require.Equal(t, 50, opts.PoolSize)
	require.Equal(t, 10, opts.MinIdleConns)
	require.Equal(t, 2*time.Second, opts.DialTimeout)
}
