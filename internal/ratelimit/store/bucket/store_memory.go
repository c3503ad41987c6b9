package bucket

import (
	"context"
	"sync"
	"time"

	"docverify/internal/ratelimit/models"
)

// InMemoryBucketStore implements a sliding window per key inside one process.
// It backs development mode and is the fallback while Redis is unreachable.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*slidingWindow
	now     func() time.Time
}

// slidingWindow tracks request timestamps. Sliding rather than fixed windows
// stop a client from doubling its budget across a window boundary.
type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

func NewInMemoryBucketStore() *InMemoryBucketStore {
	return &InMemoryBucketStore{
		buckets: make(map[string]*slidingWindow),
		now:     time.Now,
	}
}

// New is shorthand for NewInMemoryBucketStore.
func New() *InMemoryBucketStore { return NewInMemoryBucketStore() }

// WithClock replaces the time source, for tests.
func (s *InMemoryBucketStore) WithClock(now func() time.Time) *InMemoryBucketStore {
	s.now = now
	return s
}

// Allow checks if a request is allowed and counts it when it is.
func (s *InMemoryBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	return s.AllowN(ctx, key, 1, limit, window)
}

// AllowN counts cost requests at once. The check and the increment happen
// under one lock, so concurrent callers for a key are never lost.
func (s *InMemoryBucketStore) AllowN(ctx context.Context, key string, cost int, limit int, window time.Duration) (*models.RateLimitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cw := s.getOrCreateBucket(key, window)
	cw.cleanup(now)
	count := len(cw.timestamps)

	if count+cost <= limit {
		for range cost {
			cw.timestamps = append(cw.timestamps, now)
		}
		return &models.RateLimitResult{
			Allowed:   true,
			Remaining: limit - len(cw.timestamps),
			ResetAt:   cw.timestamps[0].Add(window),
			Limit:     limit,
		}, nil
	}

	resetAt := now.Add(window)
	if count > 0 {
		resetAt = cw.timestamps[0].Add(window)
	}
	return &models.RateLimitResult{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: models.RetryAfterSeconds(resetAt.Sub(now)),
	}, nil
}

// Reset clears the counter for a key.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// GetCurrentCount returns the requests counted in the current window.
func (s *InMemoryBucketStore) GetCurrentCount(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cw := s.buckets[key]
	if cw == nil {
		return 0, nil
	}
	cw.cleanup(s.now())
	return len(cw.timestamps), nil
}

// Sweep drops buckets whose window has fully elapsed.
func (s *InMemoryBucketStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, cw := range s.buckets {
		cw.cleanup(now)
		if len(cw.timestamps) == 0 {
			delete(s.buckets, k)
			removed++
		}
	}
	return removed, nil
}

// cleanup removes expired timestamps from a sliding window.
func (sw *slidingWindow) cleanup(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

// getOrCreateBucket must be called while holding s.mu.
func (s *InMemoryBucketStore) getOrCreateBucket(key string, window time.Duration) *slidingWindow {
	if cw := s.buckets[key]; cw != nil {
		cw.window = window
		return cw
	}
	cw := &slidingWindow{timestamps: []time.Time{}, window: window}
	s.buckets[key] = cw
	return cw
}
