package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	docModels "docverify/internal/document/models"
	"docverify/internal/geoip/providers"
	"docverify/internal/platform/config"
	"docverify/internal/platform/redis"
	"docverify/internal/platform/tracing"
	verifyModels "docverify/internal/verification/models"
	authmw "docverify/pkg/platform/middleware/auth"
)

const (
	homeIP     = "203.0.113.10"
	burstIP    = "203.0.113.11"
	abroadIP   = "198.51.100.20"
	unmappedIP = "192.0.2.99"
)

// ScenarioSuite drives the assembled HTTP surface end to end with in-memory
// backends and a fixed GeoIP table.
type ScenarioSuite struct {
	suite.Suite
	app     *App
	handler http.Handler
	issuer  string
	auditor string
	redis   *miniredis.Miniredis
}

func TestScenarioSuite(t *testing.T) {
	suite.Run(t, new(ScenarioSuite))
}

// TestScenarioSuiteRedis runs the same scenarios with rate limits and the
// GeoIP cache held in Redis.
func TestScenarioSuiteRedis(t *testing.T) {
	suite.Run(t, &ScenarioSuite{redis: miniredis.RunT(t)})
}

func testConfig() *config.Config {
	return &config.Config{
		Mode:            config.ModeDevelopment,
		Addr:            "127.0.0.1:0",
		LogLevel:        "error",
		ShutdownTimeout: time.Second,
		StoreTimeout:    time.Second,
		AuditTopic:      "docverify.audit",
		AuditTimeout:    time.Second,
		AuditQueue:      16,
		Signing:         config.SigningConfig{MicroprintSecret: "test-microprint-secret"},
		Auth:            config.AuthConfig{JWTSecret: "test-secret-key-at-least-32-characters", JWTIssuer: "docverify-test"},
		VerifyBaseURL:   "https://verify.example.gov",
		RateLimit:       config.RateLimitConfig{MaxAttempts: 5, Window: time.Minute, IssueMaxAttempts: 100},
		GeoIP: config.GeoIPConfig{
			Timeout:       time.Second,
			CacheTTL:      time.Minute,
			SweepInterval: time.Minute,
			DevCountry:    "ZA",
		},
		CORSAllowedOrigins: []string{"*"},
	}
}

func (s *ScenarioSuite) SetupTest() {
	opts := []Option{s.tableProviders(), WithTracer(tracing.NewNoop())}
	if s.redis != nil {
		s.redis.FlushAll()
		opts = append(opts, WithRedis(redis.Wrap(goredis.NewClient(&goredis.Options{Addr: s.redis.Addr()}))))
	}
	s.app = s.build(testConfig(), opts...)
	s.handler = s.app.Handler()

	var err error
	s.issuer, err = s.app.Tokens().GenerateAccessToken("registrar-7", []string{authmw.RoleIssuer}, time.Hour)
	s.Require().NoError(err)
	s.auditor, err = s.app.Tokens().GenerateAccessToken("auditor-2", []string{authmw.RoleAuditor}, time.Hour)
	s.Require().NoError(err)
}

func (s *ScenarioSuite) TearDownTest() {
	s.Require().NoError(s.app.Close())
}

func (s *ScenarioSuite) tableProviders() Option {
	return WithGeoProviders(providers.NewStatic("table", map[string]string{
		homeIP:   "ZA",
		burstIP:  "ZA",
		abroadIP: "GB",
	}, ""), nil)
}

func (s *ScenarioSuite) build(cfg *config.Config, opts ...Option) *App {
	a, err := Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	s.Require().NoError(err)
	return a
}

func (s *ScenarioSuite) do(h http.Handler, method, path, ip, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = ip + ":41234"
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func (s *ScenarioSuite) issue() docModels.IssueResponse {
	w := s.do(s.handler, http.MethodPost, "/documents", homeIP, s.issuer, `{
		"documentType": "birth_certificate",
		"applicantData": {"full_name": "Thandiwe Mokoena", "date_of_birth": "2001-04-12", "place_of_birth": "Durban", "sex": "F"},
		"issuerContext": {"issuerOffice": "Durban Home Affairs"}
	}`)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var resp docModels.IssueResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (s *ScenarioSuite) verify(h http.Handler, code, ip string) (*httptest.ResponseRecorder, verifyModels.VerifyResponse) {
	w := s.do(h, http.MethodGet, "/verify/"+url.PathEscape(code), ip, "", "")
	var resp verifyModels.VerifyResponse
	if w.Code == http.StatusOK {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (s *ScenarioSuite) TestIssuedDocumentVerifies() {
	doc := s.issue()

	w, resp := s.verify(s.handler, doc.VerificationCode, homeIP)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("valid", resp.Status)
	s.Equal("birth_certificate", resp.DocumentType)
	s.NotNil(resp.IssuedAt)
	s.NotContains(w.Body.String(), "Thandiwe")

	w = s.do(s.handler, http.MethodPost, "/verify", homeIP, "", `{"payload":"`+doc.QRPayload+`"}`)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"status":"valid"`)

	w = s.do(s.handler, http.MethodGet, "/documents/"+doc.DocumentID+"/artifact", homeIP, s.issuer, "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("application/pdf", w.Header().Get("Content-Type"))
}

func (s *ScenarioSuite) TestRevokedDocumentReportsRevoked() {
	doc := s.issue()

	w := s.do(s.handler, http.MethodPost, "/documents/"+doc.DocumentID+"/revoke", homeIP, s.issuer, `{"reason":"issued in error"}`)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, resp := s.verify(s.handler, doc.VerificationCode, homeIP)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("revoked", resp.Status)

	w = s.do(s.handler, http.MethodPost, "/documents/"+doc.DocumentID+"/revoke", homeIP, s.issuer, `{"reason":"again"}`)
	s.Equal(http.StatusConflict, w.Code)
}

func (s *ScenarioSuite) TestRateLimitExhaustion() {
	doc := s.issue()
	for i := range testConfig().RateLimit.MaxAttempts {
		w, _ := s.verify(s.handler, doc.VerificationCode, burstIP)
		s.Require().Equal(http.StatusOK, w.Code, "attempt %d", i+1)
	}

	w, _ := s.verify(s.handler, doc.VerificationCode, burstIP)
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.NotEmpty(w.Header().Get("Retry-After"))
	s.Equal("0", w.Header().Get("X-RateLimit-Remaining"))

	w, resp := s.verify(s.handler, doc.VerificationCode, homeIP)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("valid", resp.Status)
}

func (s *ScenarioSuite) TestUnreadableVerifyBodiesAreCounted() {
	bodies := []string{`{`, `[]`, `{"payload":""}`, `{"payload":"` + strings.Repeat("Z", 2048) + `"}`, `null`}
	for i := range testConfig().RateLimit.MaxAttempts {
		body := bodies[i%len(bodies)]
		w := s.do(s.handler, http.MethodPost, "/verify", burstIP, "", body)
		s.Require().Equal(http.StatusOK, w.Code, "attempt %d", i+1)
		s.Contains(w.Body.String(), `"status":"not_found"`)
	}

	w := s.do(s.handler, http.MethodPost, "/verify", burstIP, "", `{`)
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.NotEmpty(w.Header().Get("Retry-After"))
}

func (s *ScenarioSuite) TestUnknownCodeIsNotFound() {
	for _, code := range []string{"ZZZZ-ZZZZ-ZZZZ-ZZZZ", "not a code", strings.Repeat("ab", 32)} {
		w, resp := s.verify(s.handler, code, homeIP)
		s.Equal(http.StatusOK, w.Code, code)
		s.Equal("not_found", resp.Status, code)
		s.Empty(resp.DocumentType)
		s.Nil(resp.IssuedAt)
	}
}

func (s *ScenarioSuite) TestGeoRestriction() {
	doc := s.issue()

	s.Run("country outside the allow-list", func() {
		path := filepath.Join(s.T().TempDir(), "policy.toml")
		s.Require().NoError(os.WriteFile(path, []byte("[geo]\nallow = [\"ZA\"]\n"), 0o600))
		cfg := testConfig()
		cfg.PolicyFile = path
		a := s.build(cfg, s.tableProviders(), WithTracer(tracing.NewNoop()))
		defer a.Close()

		w, _ := s.verify(a.Handler(), "ZZZZ-ZZZZ-ZZZZ-ZZZZ", abroadIP)
		s.Equal(http.StatusForbidden, w.Code)
		w, _ = s.verify(a.Handler(), "ZZZZ-ZZZZ-ZZZZ-ZZZZ", homeIP)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("address with no known country", func() {
		w, _ := s.verify(s.handler, doc.VerificationCode, unmappedIP)
		s.Equal(http.StatusForbidden, w.Code)
		s.Contains(w.Body.String(), "geo_restricted")
	})

	s.Run("lookup services down", func() {
		down := downProvider{}
		a := s.build(testConfig(), WithGeoProviders(down, down), WithTracer(tracing.NewNoop()))
		defer a.Close()
		w, _ := s.verify(a.Handler(), doc.VerificationCode, homeIP)
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("loopback resolves to the development country", func() {
		w, resp := s.verify(s.handler, doc.VerificationCode, "127.0.0.1")
		s.Equal(http.StatusOK, w.Code)
		s.Equal("valid", resp.Status)
	})
}

func (s *ScenarioSuite) TestIssuerAPIRequiresRole() {
	body := `{"documentType":"birth_certificate","applicantData":{"full_name":"A"}}`
	w := s.do(s.handler, http.MethodPost, "/documents", homeIP, "", body)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(s.handler, http.MethodPost, "/documents", homeIP, s.auditor, body)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *ScenarioSuite) TestVerificationHistory() {
	doc := s.issue()
	s.verify(s.handler, doc.VerificationCode, homeIP)
	s.verify(s.handler, doc.VerificationCode, abroadIP)

	w := s.do(s.handler, http.MethodGet, "/verify/history/"+doc.DocumentID, homeIP, s.issuer, "")
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(s.handler, http.MethodGet, "/verify/history/"+doc.DocumentID, homeIP, s.auditor, "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var resp verifyModels.HistoryResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))

	var results []string
	for _, e := range resp.Events {
		results = append(results, e.Result)
		s.NotEqual(homeIP, e.AnonymizedSourceIP)
	}
	s.Contains(results, "valid")
	s.Contains(results, "issued")
}

func (s *ScenarioSuite) TestHealthAndMetrics() {
	w := s.do(s.handler, http.MethodGet, "/health/ready", homeIP, "", "")
	s.Equal(http.StatusOK, w.Code)

	s.verify(s.handler, "ZZZZ-ZZZZ-ZZZZ-ZZZZ", homeIP)
	w = s.do(s.handler, http.MethodGet, "/metrics", homeIP, "", "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "docverify_verifications_total")
}

type downProvider struct{}

func (downProvider) ID() string { return "down" }

func (downProvider) Lookup(context.Context, netip.Addr) (string, error) {
	return "", providers.NewProviderError(providers.ErrorTimeout, "down", "deadline exceeded", context.DeadlineExceeded)
}
