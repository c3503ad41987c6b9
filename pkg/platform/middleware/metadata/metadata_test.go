package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docverify/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct peer ignores forwarded header", "198.51.100.7:4411", "1.2.3.4", "198.51.100.7"},
		{"trusted proxy uses last untrusted hop", "10.1.2.3:80", "1.2.3.4, 203.0.113.9, 10.9.9.9", "203.0.113.9"},
		{"single trusted address", "192.0.2.1:80", "203.0.113.10", "203.0.113.10"},
		{"trusted proxy without header", "10.1.2.3:80", "", "10.1.2.3"},
		{"garbage hop stops walk", "10.1.2.3:80", "junk", "10.1.2.3"},
		{"ipv6 peer", "[2001:db8::1]:443", "", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/verify/ABC", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(r, trusted))
		})
	}
}

func TestClientMetadataMiddleware(t *testing.T) {
	var ip, ua string
	h := ClientMetadata(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.50:1234"
	r.Header.Set("User-Agent", "curl/8.5.0")
	r.Header.Set("CF-IPCountry", "ZA")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "203.0.113.50", ip)
	assert.Equal(t, "curl/8.5.0", ua)
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"not-a-cidr/99"})
	assert.Error(t, err)
}
