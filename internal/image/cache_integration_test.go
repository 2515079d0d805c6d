//go:build integration

package image

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "Failed to start redis container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisCache(client, time.Second, zap.NewNop())
	key := CacheKey("a castle at dusk")

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, CachedImage{ImageURL: "https://img/castle.jpg", TaskID: "task-1"})
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "https://img/castle.jpg", got.ImageURL)
	assert.Equal(t, "task-1", got.TaskID)

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.Eventually(t, func() bool {
		_, ok := c.Get(ctx, key)
		return !ok
	}, 5*time.Second, 100*time.Millisecond)
}
