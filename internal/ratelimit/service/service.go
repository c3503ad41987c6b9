// Package service decides whether a source address may make another request.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"docverify/internal/ratelimit/metrics"
	"docverify/internal/ratelimit/models"
	"docverify/internal/ratelimit/ports"
	"docverify/internal/ratelimit/store/bucket"
	"docverify/pkg/platform/circuit"
	"docverify/pkg/platform/privacy"
)

// Limiter checks per-IP sliding windows against the primary store. After
// repeated store errors the breaker opens and decisions come from an
// in-process fallback until the primary recovers. Limiting never fails open.
type Limiter struct {
	primary  ports.BucketStore
	fallback ports.BucketStore
	breaker  *circuit.Breaker
	limits   map[models.Scope]models.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithFallback replaces the in-process fallback store.
func WithFallback(store ports.BucketStore) Option {
	return func(l *Limiter) { l.fallback = store }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) { l.breaker = b }
}

// WithLimit sets the allowance for one scope.
func WithLimit(scope models.Scope, limit models.Limit) Option {
	return func(l *Limiter) { l.limits[scope] = limit }
}

func New(primary ports.BucketStore, opts ...Option) (*Limiter, error) {
	if primary == nil {
		return nil, fmt.Errorf("bucket store is required")
	}
	l := &Limiter{
		primary: primary,
		limits:  make(map[models.Scope]models.Limit),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fallback == nil {
		l.fallback = bucket.New()
	}
	if l.breaker == nil {
		l.breaker = circuit.New("ratelimit")
	}
	for _, scope := range []models.Scope{models.ScopeVerify, models.ScopeIssue} {
		lim, ok := l.limits[scope]
		if !ok || lim.RequestsPerWindow <= 0 || lim.Window <= 0 {
			return nil, fmt.Errorf("limit for scope %q must be positive", scope)
		}
	}
	return l, nil
}

// Check counts one verification attempt from sourceIP.
func (l *Limiter) Check(ctx context.Context, sourceIP string) (*models.RateLimitResult, error) {
	return l.CheckScope(ctx, models.ScopeVerify, sourceIP)
}

// CheckScope counts one request from sourceIP against the scope's window.
// The error is non-nil only when the fallback store fails too.
func (l *Limiter) CheckScope(ctx context.Context, scope models.Scope, sourceIP string) (*models.RateLimitResult, error) {
	limit := l.limits[scope]
	key := models.NewIPRateLimitKey(scope, sourceIP)

	if !l.breaker.IsOpen() {
		result, err := l.primary.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
		if err == nil {
			l.breaker.RecordSuccess()
			l.metrics.ObserveDecision(string(scope), result.Allowed, false)
			return result, nil
		}
		l.onPrimaryFailure(ctx, sourceIP, err)
	} else {
		l.probePrimary(ctx, key)
	}

	result, err := l.fallback.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
	if err != nil {
		return nil, fmt.Errorf("rate limit fallback: %w", err)
	}
	result.Degraded = true
	l.metrics.ObserveDecision(string(scope), result.Allowed, true)
	return result, nil
}

func (l *Limiter) onPrimaryFailure(ctx context.Context, sourceIP string, err error) {
	l.metrics.IncStoreError()
	_, change := l.breaker.RecordFailure()
	l.logger.WarnContext(ctx, "ratelimit_store_failed",
		"error", err,
		"ip_prefix", privacy.AnonymizeIP(sourceIP),
	)
	if change.Opened {
		l.metrics.SetDegraded(true)
		l.logger.ErrorContext(ctx, "ratelimit_degraded", "breaker", l.breaker.Name())
	}
}

// probePrimary checks whether the primary store answers again while the
// breaker is open. Probes read only, so a request is never counted twice.
func (l *Limiter) probePrimary(ctx context.Context, key string) {
	if _, err := l.primary.GetCurrentCount(ctx, key); err != nil {
		l.breaker.RecordFailure()
		return
	}
	if _, change := l.breaker.RecordSuccess(); change.Closed {
		l.metrics.SetDegraded(false)
		l.logger.InfoContext(ctx, "ratelimit_recovered", "breaker", l.breaker.Name())
	}
}

// Degraded reports whether decisions currently come from the fallback.
func (l *Limiter) Degraded() bool {
	return l.breaker.IsOpen()
}
