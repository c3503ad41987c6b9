package models

import (
	"math"
	"time"
)

// Scope separates the counters of the public verification endpoints from
// the issuer API.
type Scope string

const (
	ScopeVerify Scope = "verify"
	ScopeIssue  Scope = "issue"
)

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
	// Degraded is set when the shared store is unreachable and the decision
	// came from the per-process fallback.
	Degraded bool `json:"-"`
}

// RetryAfterSeconds rounds d up to whole seconds with a floor of one.
func RetryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

// Limit is a per-window allowance.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}
