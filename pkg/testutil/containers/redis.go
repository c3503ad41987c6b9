//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"docverify/internal/platform/config"
	platformredis "docverify/internal/platform/redis"
)

// RedisContainer backs the shared rate-limit buckets and the GeoIP cache in
// integration tests.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client
}

// NewRedisContainer starts Redis and connects through the same constructor
// the server uses, so URL parsing and the startup ping are exercised too.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7.4-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	fail := func(step string, err error) {
		_ = container.Terminate(ctx)
		t.Fatalf("%s: %v", step, err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		fail("redis connection string", err)
	}
	client, err := platformredis.New(ctx, config.RedisConfig{URL: url})
	if err != nil {
		fail("connect redis", err)
	}

	return &RedisContainer{Container: container, URL: url, Client: client.Client}
}

// FlushAll removes every key. Call it from SetupTest.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
