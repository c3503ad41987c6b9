package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	rlModels "docverify/internal/ratelimit/models"
	"docverify/internal/verification/handler/mocks"
	"docverify/internal/verification/models"
	dErrors "docverify/pkg/domain-errors"
	audit "docverify/pkg/platform/audit"
	"docverify/pkg/platform/privacy"
	"docverify/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/verification-mocks.go -package=mocks Service

type VerificationHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestVerificationHandlerSuite(t *testing.T) {
	suite.Run(t, new(VerificationHandlerSuite))
}

func (s *VerificationHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, testutil.WithClientMetadata(r, "198.51.100.4", "curl/8.5.0"))
		})
	})
	h.Register(s.router)
	h.RegisterHistory(s.router)
}

func (s *VerificationHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func allowed() *rlModels.RateLimitResult {
	return &rlModels.RateLimitResult{Allowed: true, Limit: 60, Remaining: 59, ResetAt: time.Unix(1800000000, 0)}
}

func (s *VerificationHandlerSuite) TestVerifyOutcomes() {
	issuedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name       string
		outcome    *models.Outcome
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name: "valid",
			outcome: &models.Outcome{Result: audit.ResultValid, DocumentID: "internal-id",
				DocumentType: "passport", IssuedAt: &issuedAt, RateLimit: allowed()},
			wantStatus: http.StatusOK,
			wantBody:   `"status":"valid"`,
		},
		{
			name:       "revoked",
			outcome:    &models.Outcome{Result: audit.ResultRevoked, DocumentType: "visa", IssuedAt: &issuedAt, RateLimit: allowed()},
			wantStatus: http.StatusOK,
			wantBody:   `"status":"revoked"`,
		},
		{
			name:       "invalid",
			outcome:    &models.Outcome{Result: audit.ResultInvalid, RateLimit: allowed()},
			wantStatus: http.StatusOK,
			wantBody:   `"status":"invalid"`,
		},
		{
			name:       "not found looks like any other outcome",
			outcome:    &models.Outcome{Result: audit.ResultNotFound, RateLimit: allowed()},
			wantStatus: http.StatusOK,
			wantBody:   `"status":"not_found"`,
		},
		{
			name:       "geo rejected",
			outcome:    &models.Outcome{Result: audit.ResultRejectedGeo, RateLimit: allowed()},
			wantStatus: http.StatusForbidden,
			wantBody:   `"geo_restricted"`,
		},
		{
			name:       "store unavailable",
			outcome:    &models.Outcome{Result: audit.ResultUnavailable, RateLimit: allowed()},
			err:        dErrors.New(dErrors.CodeUnavailable, "document store unavailable"),
			wantStatus: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.service.EXPECT().Verify(gomock.Any(), models.Request{
				Input: "ABCDE-FGHJK-X", SourceIP: "198.51.100.4", UserAgent: "curl/8.5.0",
			}).Return(tt.outcome, tt.err)

			w := s.do(http.MethodGet, "/verify/ABCDE-FGHJK-X", "")
			s.Equal(tt.wantStatus, w.Code)
			s.Contains(w.Body.String(), tt.wantBody)
			s.NotContains(w.Body.String(), "internal-id")
			s.Equal("60", w.Header().Get("X-RateLimit-Limit"))
		})
	}
}

func (s *VerificationHandlerSuite) TestVerifyResponseShape() {
	issuedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.service.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&models.Outcome{
		Result: audit.ResultValid, DocumentID: "d", DocumentType: "passport", IssuedAt: &issuedAt, Country: "ZA",
	}, nil)

	w := s.do(http.MethodGet, "/verify/code", "")
	var body map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal(map[string]any{
		"status":       "valid",
		"documentType": "passport",
		"issuedAt":     "2026-01-02T03:04:05Z",
	}, body)
}

func (s *VerificationHandlerSuite) TestRateLimited() {
	s.service.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&models.Outcome{
		Result:    audit.ResultRejectedRateLimit,
		RateLimit: &rlModels.RateLimitResult{Allowed: false, Limit: 60, RetryAfter: 42, Degraded: true},
	}, nil)

	w := s.do(http.MethodGet, "/verify/code", "")
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.Equal("42", w.Header().Get("Retry-After"))
	s.Equal("degraded", w.Header().Get("X-RateLimit-Status"))
}

func (s *VerificationHandlerSuite) TestAuditDeferredHeader() {
	s.service.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&models.Outcome{
		Result: audit.ResultNotFound, AuditDeferred: true,
	}, nil)

	w := s.do(http.MethodGet, "/verify/code", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("deferred", w.Header().Get(HeaderAuditStatus))
}

func (s *VerificationHandlerSuite) TestVerifyPayload() {
	payload := "https://verify.example.gov/verify/ABCDE-FGHJK-X?h=0123abcd"
	s.Run("passes the payload through", func() {
		s.service.EXPECT().Verify(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req models.Request) (*models.Outcome, error) {
				s.Equal(payload, req.Input)
				return &models.Outcome{Result: audit.ResultValid}, nil
			})
		w := s.do(http.MethodPost, "/verify", `{"payload":"  `+payload+` "}`)
		s.Equal(http.StatusOK, w.Code)
	})

	unreadable := map[string]string{
		"empty payload":  `{"payload":""}`,
		"no body":        "",
		"malformed body": `{`,
		"not an object":  `"just a string"`,
		"oversized":      `{"payload":"` + strings.Repeat("A", 4096) + `"}`,
	}
	for name, body := range unreadable {
		s.Run(name+" is still verified", func() {
			s.service.EXPECT().Verify(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, req models.Request) (*models.Outcome, error) {
					s.Equal("198.51.100.4", req.SourceIP)
					return &models.Outcome{Result: audit.ResultNotFound, RateLimit: allowed()}, nil
				})
			w := s.do(http.MethodPost, "/verify", body)
			s.Equal(http.StatusOK, w.Code)
			s.Contains(w.Body.String(), `"status":"not_found"`)
		})
	}

	s.Run("rate limit applies to unreadable bodies", func() {
		s.service.EXPECT().Verify(gomock.Any(), gomock.Any()).
			Return(&models.Outcome{
				Result:    audit.ResultRejectedRateLimit,
				RateLimit: &rlModels.RateLimitResult{Allowed: false, Limit: 5, RetryAfter: 30},
			}, nil)
		w := s.do(http.MethodPost, "/verify", `{`)
		s.Equal(http.StatusTooManyRequests, w.Code)
	})
}

func (s *VerificationHandlerSuite) TestHistory() {
	docID := "0b7e9b1e-4d55-4c36-a1de-4d9e6c0f7a10"
	event := audit.VerificationEvent{
		Timestamp:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		DocumentID: docID,
		Result:     audit.ResultValid,
		Source:     privacy.ScrubSource("203.0.113.9", "curl/8.5.0"),
	}.ToEvent()

	s.Run("filters are parsed", func() {
		s.service.EXPECT().History(gomock.Any(), docID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, q models.HistoryQuery) ([]audit.Event, error) {
				s.Equal([]audit.Result{audit.ResultValid, audit.ResultRevoked}, q.Results)
				s.Equal(10, q.Limit)
				s.False(q.From.IsZero())
				return []audit.Event{event}, nil
			})

		w := s.do(http.MethodGet, "/verify/history/"+docID+"?result=valid,revoked&limit=10&from=2026-01-01T00:00:00Z", "")
		s.Require().Equal(http.StatusOK, w.Code)
		var resp models.HistoryResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Require().Len(resp.Events, 1)
		s.Equal("203.0.113.0", resp.Events[0].AnonymizedSourceIP)
		s.NotContains(w.Body.String(), "203.0.113.9")
	})

	s.Run("bad filter", func() {
		w := s.do(http.MethodGet, "/verify/history/"+docID+"?result=maybe", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("unknown document", func() {
		s.service.EXPECT().History(gomock.Any(), docID, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "document not found"))
		w := s.do(http.MethodGet, "/verify/history/"+docID, "")
		s.Equal(http.StatusNotFound, w.Code)
	})
}
