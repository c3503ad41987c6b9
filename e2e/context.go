package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// TestContext carries HTTP state between the steps of one scenario. The
// server under test must list the runner's address in TRUSTED_PROXIES so
// X-Forwarded-For selects the simulated client address.
type TestContext struct {
	baseURL      string
	client       *http.Client
	issuerToken  string
	auditorToken string

	clientIP string
	token    string

	lastStatus  int
	lastHeaders http.Header
	lastBody    []byte

	values map[string]string
}

func NewTestContext() *TestContext {
	base := os.Getenv("DOCVERIFY_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	return &TestContext{
		baseURL:      strings.TrimRight(base, "/"),
		client:       &http.Client{Timeout: 10 * time.Second},
		issuerToken:  os.Getenv("E2E_ISSUER_TOKEN"),
		auditorToken: os.Getenv("E2E_AUDITOR_TOKEN"),
		values:       make(map[string]string),
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.clientIP = ""
	tc.token = ""
	tc.lastStatus = 0
	tc.lastHeaders = nil
	tc.lastBody = nil
	tc.values = make(map[string]string)
}

func (tc *TestContext) SetClientIP(ip string) { tc.clientIP = ip }
func (tc *TestContext) ClientIP() string      { return tc.clientIP }

func (tc *TestContext) UseIssuerToken() error {
	if tc.issuerToken == "" {
		return fmt.Errorf("E2E_ISSUER_TOKEN is not set")
	}
	tc.token = tc.issuerToken
	return nil
}

func (tc *TestContext) UseAuditorToken() error {
	if tc.auditorToken == "" {
		return fmt.Errorf("E2E_AUDITOR_TOKEN is not set")
	}
	tc.token = tc.auditorToken
	return nil
}

func (tc *TestContext) ClearToken() { tc.token = "" }

func (tc *TestContext) Remember(key, value string) { tc.values[key] = value }

func (tc *TestContext) Recall(key string) (string, error) {
	v, ok := tc.values[key]
	if !ok {
		return "", fmt.Errorf("nothing remembered as %q", key)
	}
	return v, nil
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	if tc.clientIP != "" {
		req.Header.Set("X-Forwarded-For", tc.clientIP)
	}
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeaders = resp.Header
	return nil
}

func (tc *TestContext) LastStatus() int               { return tc.lastStatus }
func (tc *TestContext) LastBody() []byte              { return tc.lastBody }
func (tc *TestContext) LastHeader(name string) string { return tc.lastHeaders.Get(name) }

// ResponseField reads a top-level string field of the last JSON response.
func (tc *TestContext) ResponseField(field string) (string, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return "", fmt.Errorf("response is not a JSON object: %s", tc.lastBody)
	}
	v, ok := body[field]
	if !ok {
		return "", fmt.Errorf("response has no %q field: %s", field, tc.lastBody)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, not a string", field, v)
	}
	return s, nil
}

// HasField reports whether the last JSON response carries field.
func (tc *TestContext) HasField(field string) bool {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return false
	}
	_, ok := body[field]
	return ok
}
