package models

import (
	"net/netip"
	"strings"
)

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// so that a crafted identifier containing ':' cannot land in another bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// NormalizeIP returns the bucket identity for an address. IPv6 clients are
// grouped by /64 since a single host usually controls the whole prefix.
// Unparseable input gets one shared bucket.
func NormalizeIP(raw string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "invalid"
	}
	addr = addr.WithZone("").Unmap()
	if addr.Is6() {
		prefix, _ := addr.Prefix(64)
		return prefix.String()
	}
	return addr.String()
}

// NewIPRateLimitKey builds ratelimit:<scope>:ip:<normalized ip>.
func NewIPRateLimitKey(scope Scope, ip string) string {
	return "ratelimit:" + string(scope) + ":ip:" + SanitizeKeySegment(NormalizeIP(ip))
}
