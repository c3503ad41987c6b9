package providers

import (
	"context"
	"net/netip"
)

// Static answers from a fixed table. It backs development setups with no
// lookup endpoint configured and the scenario tests.
type Static struct {
	id        string
	countries map[netip.Addr]string
	fallback  string
}

// NewStatic returns a provider that maps the given addresses and answers
// fallback for everything else. An empty fallback means not found.
func NewStatic(id string, countries map[string]string, fallback string) *Static {
	table := make(map[netip.Addr]string, len(countries))
	for raw, code := range countries {
		if addr, err := netip.ParseAddr(raw); err == nil {
			table[addr.Unmap()] = code
		}
	}
	return &Static{id: id, countries: table, fallback: fallback}
}

func (s *Static) ID() string { return s.id }

func (s *Static) Lookup(ctx context.Context, ip netip.Addr) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", NewProviderError(ErrorTimeout, s.id, "context done", err)
	}
	if code, ok := s.countries[ip.Unmap()]; ok {
		return code, nil
	}
	if s.fallback != "" {
		return s.fallback, nil
	}
	return "", NewProviderError(ErrorNotFound, s.id, "address unknown", nil)
}
