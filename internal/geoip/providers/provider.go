// Package providers holds the outbound country lookup adapters used by the
// GeoIP resolver.
package providers

import (
	"context"
	"net/netip"
)

// Provider maps an address to an ISO 3166-1 alpha-2 country code.
type Provider interface {
	ID() string
	Lookup(ctx context.Context, ip netip.Addr) (string, error)
}

// ValidCountry reports whether code is two ASCII upper-case letters.
func ValidCountry(code string) bool {
	if len(code) != 2 {
		return false
	}
	for i := range 2 {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
