package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docverify/internal/ratelimit/models"
)

// slidingWindowScript trims the sorted set to the window, counts it and adds
// the new members only when they fit, all in one atomic step. Members carry a
// sequence suffix so two requests in the same millisecond both count.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local seq_key = KEYS[2]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now_ms - window_ms)
local count = redis.call("ZCARD", key)

local allowed = 0
if count + cost <= limit then
  allowed = 1
  for i = 1, cost do
    local seq = redis.call("INCR", seq_key)
    redis.call("ZADD", key, now_ms, tostring(now_ms) .. "-" .. tostring(seq))
  end
  count = count + cost
end

local oldest_ms = now_ms
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest and oldest[2] then
  oldest_ms = tonumber(oldest[2])
end

redis.call("PEXPIRE", key, window_ms)
redis.call("PEXPIRE", seq_key, window_ms)

local remaining = limit - count
if remaining < 0 then
  remaining = 0
end
return {allowed, remaining, oldest_ms + window_ms}
`)

// RedisBucketStore shares sliding windows across replicas.
type RedisBucketStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisBucketStore(client redis.UniversalClient) *RedisBucketStore {
	return &RedisBucketStore{client: client, now: time.Now}
}

// windowKeys returns the sorted set and sequence keys for a bucket. Both carry
// the same hash tag so a cluster keeps them in one slot.
func windowKeys(key string) []string {
	tagged := "{" + key + "}"
	return []string{tagged, tagged + ":seq"}
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	return s.AllowN(ctx, key, 1, limit, window)
}

func (s *RedisBucketStore) AllowN(ctx context.Context, key string, cost int, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.now()
	windowMS := max(window.Milliseconds(), 1)
	raw, err := slidingWindowScript.Run(ctx, s.client,
		windowKeys(key),
		now.UnixMilli(), windowMS, limit, cost,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply length %d", len(raw))
	}

	resetAt := time.UnixMilli(raw[2])
	result := &models.RateLimitResult{
		Allowed:   raw[0] == 1,
		Limit:     limit,
		Remaining: int(raw[1]),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = models.RetryAfterSeconds(resetAt.Sub(now))
	}
	return result, nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, windowKeys(key)...).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	return nil
}

// GetCurrentCount may include members older than the window until the next
// Allow trims them.
func (s *RedisBucketStore) GetCurrentCount(ctx context.Context, key string) (int, error) {
	n, err := s.client.ZCard(ctx, windowKeys(key)[0]).Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit count: %w", err)
	}
	return int(n), nil
}
