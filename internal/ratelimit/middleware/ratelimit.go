package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"docverify/internal/ratelimit/models"
	dErrors "docverify/pkg/domain-errors"
	"docverify/pkg/platform/httputil"
	"docverify/pkg/platform/privacy"
	"docverify/pkg/requestcontext"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderStatus     = "X-RateLimit-Status"
	HeaderRetryAfter = "Retry-After"
)

type RateLimiter interface {
	CheckScope(ctx context.Context, scope models.Scope, ip string) (*models.RateLimitResult, error)
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for local demos).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit bounds requests per source IP for the given scope. The client IP
// must already be in the context (see the metadata middleware).
func (m *Middleware) RateLimit(scope models.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			result, err := m.limiter.CheckScope(ctx, scope, ip)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check IP rate limit",
					"error", err,
					"ip_prefix", privacy.AnonymizeIP(ip),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "rate limiter unavailable"))
				return
			}

			AddRateLimitHeaders(w, result)
			if !result.Allowed {
				WriteRateLimitExceeded(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AddRateLimitHeaders sets the X-RateLimit-* headers for result.
func AddRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set(HeaderLimit, strconv.Itoa(result.Limit))
	w.Header().Set(HeaderRemaining, strconv.Itoa(result.Remaining))
	w.Header().Set(HeaderReset, strconv.FormatInt(result.ResetAt.Unix(), 10))
	if result.Degraded {
		w.Header().Set(HeaderStatus, "degraded")
	}
}

func WriteRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	retryAfter := max(result.RetryAfter, 1)
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests from this IP address. Please try again later.",
		RetryAfter: retryAfter,
	})
}
