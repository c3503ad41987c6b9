// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values, services read them. Keeping the package free of
// net/http lets services depend on it without pulling in transport code.
//
//	principal := requestcontext.Principal(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.9", "curl/8.0")
package requestcontext

import (
	"context"
	"slices"
	"time"
)

type (
	principalKey   struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// AuthPrincipal is the authenticated caller supplied by the bearer-token middleware.
type AuthPrincipal struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the principal carries role.
func (p AuthPrincipal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// IsZero reports whether no principal was authenticated.
func (p AuthPrincipal) IsZero() bool {
	return p.Subject == ""
}

// Principal returns the authenticated caller, or the zero value when the request is anonymous.
func Principal(ctx context.Context) AuthPrincipal {
	if p, ok := ctx.Value(principalKey{}).(AuthPrincipal); ok {
		return p
	}
	return AuthPrincipal{}
}

func WithPrincipal(ctx context.Context, p AuthPrincipal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// ClientIP returns the source IP resolved by the metadata middleware. The value
// is raw and must go through pkg/platform/privacy before it is stored or logged.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent returns the raw User-Agent header. Same handling rules as ClientIP.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() outside HTTP requests (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
