// Package geoip resolves a caller address to a country and decides whether
// that country may verify documents. Anything that cannot be resolved is
// treated as blocked.
package geoip

import (
	"context"
	"net/netip"
	"time"
)

// Source records where a resolution came from.
type Source string

const (
	SourceCache       Source = "cache"
	SourcePrimary     Source = "primary"
	SourceFallback    Source = "fallback"
	SourceDevelopment Source = "development"
	SourceUnresolved  Source = "unresolved"
)

type Resolution struct {
	Country string
	Source  Source
}

// Resolved is false only when no country could be determined.
func (r Resolution) Resolved() bool {
	return r.Source != SourceUnresolved && r.Country != ""
}

func unresolved() Resolution {
	return Resolution{Source: SourceUnresolved}
}

// Cache stores successful lookups. Get returns ok=false for missing and
// expired entries alike.
type Cache interface {
	Get(ctx context.Context, key string) (country string, ok bool, err error)
	Set(ctx context.Context, key, country string, ttl time.Duration) error
}

// cacheKey normalizes addr so that IPv4-mapped IPv6 and plain IPv4 share an
// entry.
func cacheKey(addr netip.Addr) string {
	return addr.Unmap().String()
}

// isLocal reports addresses that never reach a provider.
func isLocal(addr netip.Addr) bool {
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
