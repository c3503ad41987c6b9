package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIPRateLimitKey(t *testing.T) {
	tests := []struct {
		ip   string
		want string
	}{
		{"203.0.113.9", "ratelimit:verify:ip:203.0.113.9"},
		{" 203.0.113.9 ", "ratelimit:verify:ip:203.0.113.9"},
		{"::ffff:203.0.113.9", "ratelimit:verify:ip:203.0.113.9"},
		{"2001:db8:1:2:3:4:5:6", "ratelimit:verify:ip:2001_db8_1_2__/64"},
		{"fe80::1%eth0", "ratelimit:verify:ip:fe80__/64"},
		{"garbage", "ratelimit:verify:ip:invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, NewIPRateLimitKey(ScopeVerify, tt.ip))
		})
	}
}
