package privacy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type PrivacySuite struct {
	suite.Suite
}

func TestPrivacySuite(t *testing.T) {
	suite.Run(t, new(PrivacySuite))
}

func (s *PrivacySuite) TestAnonymizeIP() {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ipv4 standard address", "203.0.113.47", "203.0.113.0"},
		{"ipv4 already zeroed", "10.0.0.0", "10.0.0.0"},
		{"ipv4 loopback", "127.0.0.1", "127.0.0.0"},
		{"ipv4 mapped ipv6", "::ffff:198.51.100.23", "198.51.100.0"},
		{"ipv6 full address", "2001:db8:85a3:0000:0000:8a2e:0370:7334", "2001:db8:85a3::"},
		{"ipv6 compressed address", "2001:db8:85a3::8a2e:370:7334", "2001:db8:85a3::"},
		{"ipv6 loopback", "::1", "::"},
		{"ipv6 with zone", "fe80::1%eth0", "fe80::"},
		{"empty string", "", ""},
		{"garbage", "not-an-ip", "invalid"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.expected, AnonymizeIP(tt.input))
		})
	}
}

func (s *PrivacySuite) TestAnonymizeUserAgent() {
	s.Run("desktop chrome", func() {
		raw := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.110 Safari/537.36"
		got := AnonymizeUserAgent(raw)
		s.Equal("chrome 120/windows/desktop", got)
	})

	s.Run("mobile safari", func() {
		raw := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
		got := AnonymizeUserAgent(raw)
		s.True(strings.HasSuffix(got, "/mobile"), got)
		s.True(strings.HasPrefix(got, "safari 17/"), got)
	})

	s.Run("crawler is classified as bot", func() {
		got := AnonymizeUserAgent("Googlebot/2.1 (+http://www.google.com/bot.html)")
		s.True(strings.HasSuffix(got, "/bot"), got)
	})

	s.Run("empty is unknown", func() {
		s.Equal("unknown", AnonymizeUserAgent("  "))
	})
}

func (s *PrivacySuite) TestScrubFreeText() {
	s.Run("redacts each identifier kind", func() {
		in := "Call +27 82 555 1234 or mail jane.doe@example.org, ID 8001015009087, passport A12345678"
		out := ScrubFreeText(in)
		s.Contains(out, "[REDACTED:phone]")
		s.Contains(out, "[REDACTED:email]")
		s.Contains(out, "[REDACTED:national_id]")
		s.Contains(out, "[REDACTED:passport]")
		s.NotContains(out, "8001015009087")
		s.NotContains(out, "jane.doe")
		s.NotContains(out, "A12345678")
	})

	s.Run("leaves plain reasons alone", func() {
		s.Equal("superseded", ScrubFreeText("superseded"))
		s.Equal("issued in error on 2024-05-01", ScrubFreeText("issued in error on 2024-05-01"))
	})
}

func TestScrubSource_NeverKeepsRawValues(t *testing.T) {
	rawIP := "198.51.100.77"
	rawUA := "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	src := ScrubSource(rawIP, rawUA)
	assert.NotEqual(t, rawIP, src.IP())
	assert.NotEqual(t, rawUA, src.UserAgent())
	assert.Equal(t, "198.51.100.0", src.IP())
	assert.Equal(t, "firefox 121/linux/desktop", src.UserAgent())
}
