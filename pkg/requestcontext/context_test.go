package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrincipal(t *testing.T) {
	ctx := context.Background()
	assert.True(t, Principal(ctx).IsZero())

	ctx = WithPrincipal(ctx, AuthPrincipal{Subject: "clerk-7", Roles: []string{"issuer"}})
	p := Principal(ctx)
	assert.Equal(t, "clerk-7", p.Subject)
	assert.True(t, p.HasRole("issuer"))
	assert.False(t, p.HasRole("auditor"))
}

func TestNowFallsBackToWallClock(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
	assert.WithinDuration(t, time.Now(), Now(context.Background()), time.Second)
}

func TestClientMetadata(t *testing.T) {
	ctx := WithClientMetadata(context.Background(), "203.0.113.9", "curl/8.0")
	assert.Equal(t, "203.0.113.9", ClientIP(ctx))
	assert.Equal(t, "curl/8.0", UserAgent(ctx))
	assert.Empty(t, RequestID(ctx))
}
