package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "geoip:country:"

// Cache persists resolved countries in Redis with TTL-based eviction, so
// every replica shares one view and Redis handles expiry.
type Cache struct {
	client *redis.Client
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	country, err := c.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("geoip cache get: %w", err)
	}
	return country, true, nil
}

// Set overwrites any existing entry in a single SET, so readers see either
// the old or the new value.
func (c *Cache) Set(ctx context.Context, key, country string, ttl time.Duration) error {
	if err := c.client.Set(ctx, keyPrefix+key, country, ttl).Err(); err != nil {
		return fmt.Errorf("geoip cache set: %w", err)
	}
	return nil
}
