package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := New(client)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "203.0.113.9", "ZA", time.Minute))
	country, ok, err := c.Get(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ZA", country)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, ok, "redis expiry removes stale entries")

	mr.Close()
	_, _, err = c.Get(ctx, "203.0.113.9")
	assert.Error(t, err)
}
