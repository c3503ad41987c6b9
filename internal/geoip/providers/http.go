package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxBodyBytes   = 4 << 10
	defaultTimeout = 2 * time.Second
	maxTimeout     = 3 * time.Second
)

// countryFields are the JSON keys the common lookup APIs use.
var countryFields = []string{"country_code", "countryCode", "country_iso", "country"}

// HTTPProvider queries a lookup endpoint whose URL template contains "{ip}".
// JSON responses are searched for a country field; anything else is read as
// a bare country code.
type HTTPProvider struct {
	id       string
	template string
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
}

type HTTPOption func(*HTTPProvider)

// WithTimeout bounds a single lookup. Values above three seconds are capped.
func WithTimeout(d time.Duration) HTTPOption {
	return func(p *HTTPProvider) {
		if d > 0 {
			p.timeout = min(d, maxTimeout)
		}
	}
}

// WithQPS caps outbound calls to the provider. Calls over the cap fail fast
// with ErrorRateLimited rather than queueing behind the request.
func WithQPS(qps float64) HTTPOption {
	return func(p *HTTPProvider) {
		if qps > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(qps), max(1, int(qps)))
		}
	}
}

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.client = c }
}

func NewHTTPProvider(id, urlTemplate string, opts ...HTTPOption) (*HTTPProvider, error) {
	if !strings.Contains(urlTemplate, "{ip}") {
		return nil, fmt.Errorf("geoip provider %s: url template must contain {ip}", id)
	}
	p := &HTTPProvider{
		id:       id,
		template: urlTemplate,
		client:   &http.Client{},
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *HTTPProvider) ID() string { return p.id }

func (p *HTTPProvider) Lookup(ctx context.Context, ip netip.Addr) (string, error) {
	if p.limiter != nil && !p.limiter.Allow() {
		return "", NewProviderError(ErrorRateLimited, p.id, "outbound rate cap reached", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	url := strings.ReplaceAll(p.template, "{ip}", ip.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", NewProviderError(ErrorUnavailable, p.id, "build request", err)
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", NewProviderError(ErrorTimeout, p.id, "lookup timed out", err)
		}
		return "", NewProviderError(ErrorUnavailable, p.id, "lookup failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", NewProviderError(ErrorNotFound, p.id, "address unknown", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", NewProviderError(ErrorRateLimited, p.id, "provider throttled", nil)
	case resp.StatusCode >= 500:
		return "", NewProviderError(ErrorUnavailable, p.id, fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return "", NewProviderError(ErrorBadData, p.id, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", NewProviderError(ErrorTimeout, p.id, "reading body timed out", err)
		}
		return "", NewProviderError(ErrorUnavailable, p.id, "read body", err)
	}

	code, err := parseCountry(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return "", NewProviderError(ErrorBadData, p.id, "parse response", err)
	}
	if code == "" {
		return "", NewProviderError(ErrorNotFound, p.id, "no country in response", nil)
	}
	if !ValidCountry(code) {
		return "", NewProviderError(ErrorBadData, p.id, "malformed country code", nil)
	}
	return code, nil
}

func parseCountry(contentType string, body []byte) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "application/json" {
		return strings.ToUpper(strings.TrimSpace(string(body))), nil
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", err
	}
	for _, field := range countryFields {
		if v, ok := doc[field].(string); ok && v != "" {
			return strings.ToUpper(strings.TrimSpace(v)), nil
		}
	}
	return "", nil
}
