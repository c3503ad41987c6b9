// Package privacy reduces request metadata to values that cannot single out a
// verifier. Everything that leaves a request handler for logs, audit storage or
// history responses passes through here first.
package privacy

import (
	"net/netip"
	"strings"
)

// AnonymizeIP keeps the network part of an address only.
//
// IPv4 addresses lose their last octet ("203.0.113.47" -> "203.0.113.0").
// IPv6 addresses are cut to their /48 prefix ("2001:db8:85a3::8a2e:370:7334" -> "2001:db8:85a3::").
// IPv4-mapped IPv6 addresses are treated as IPv4. Unparseable input yields "invalid"
// and empty input yields "".
func AnonymizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap().WithZone("")
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
