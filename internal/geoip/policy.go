package geoip

import (
	"slices"

	"docverify/internal/platform/config"
)

type PolicySource interface {
	Current() *config.Policy
}

// Policy applies the operator's country rules to a resolution.
type Policy struct {
	source PolicySource
}

func NewPolicy(source PolicySource) *Policy {
	return &Policy{source: source}
}

// Allows is false for unresolved addresses, deny-listed countries and, when
// an allow-list is configured, every country not on it.
func (p *Policy) Allows(r Resolution) bool {
	if !r.Resolved() {
		return false
	}
	geo := p.source.Current().Geo
	if slices.Contains(geo.Deny, r.Country) {
		return false
	}
	if len(geo.Allow) > 0 {
		return slices.Contains(geo.Allow, r.Country)
	}
	return true
}

// DevCountry reads the development country from the current policy.
func (p *Policy) DevCountry() string {
	return p.source.Current().Geo.DevCountry
}
