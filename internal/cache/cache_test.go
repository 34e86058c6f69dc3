package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	c := NewRedisCacheFromClient(client)

	ctx := context.Background()

	_, found, err := c.Get(ctx, "diagnostic_abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "diagnostic_abc", "synthèse", time.Hour))

	value, found, err := c.Get(ctx, "diagnostic_abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "synthèse", value)

	server.FastForward(2 * time.Hour)

	_, found, err = c.Get(ctx, "diagnostic_abc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInMemoryCacheExpiry(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Nanosecond))
	time.Sleep(5 * time.Millisecond)

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "k2", "v2", 0))
	value, found, err := c.Get(ctx, "k2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v2", value)
}
