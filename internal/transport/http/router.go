package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	dochandler "docverify/internal/document/handler"
	"docverify/internal/platform/health"
	"docverify/internal/platform/metrics"
	rlMiddleware "docverify/internal/ratelimit/middleware"
	rlModels "docverify/internal/ratelimit/models"
	verifyhandler "docverify/internal/verification/handler"
	authmw "docverify/pkg/platform/middleware/auth"
	"docverify/pkg/platform/middleware/metadata"
	"docverify/pkg/platform/middleware/request"
	"docverify/pkg/platform/middleware/requesttime"
)

const (
	maxBodyBytes   = 1 << 20
	requestTimeout = 30 * time.Second
)

// Deps are the handlers and middleware the router mounts.
type Deps struct {
	Logger         *slog.Logger
	Gatherer       prometheus.Gatherer
	RequestMetrics *request.Metrics
	TrustedProxies metadata.TrustedProxies
	CORSOrigins    []string

	Validator authmw.JWTValidator
	RateLimit *rlMiddleware.Middleware

	Health       *health.Handler
	Documents    *dochandler.Handler
	Verification *verifyhandler.Handler
}

// NewRouter wires every endpoint. Verification is public and rate limited
// inside the verification service; the issuer and auditor APIs require a
// bearer token carrying the matching role.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata(d.TrustedProxies))
	r.Use(request.Logger(d.Logger))
	r.Use(request.LatencyMiddleware(d.RequestMetrics))
	r.Use(request.CORS(d.CORSOrigins))
	r.Use(request.BodyLimit(maxBodyBytes))
	r.Use(request.ContentTypeJSON)

	d.Health.Register(r)
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(requestTimeout))
		d.Verification.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(requestTimeout))
		r.Use(authmw.RequireAuth(d.Validator, d.Logger))
		r.Use(d.RateLimit.RateLimit(rlModels.ScopeIssue))
		r.Use(authmw.RequireRole(authmw.RoleIssuer, d.Logger))
		d.Documents.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(requestTimeout))
		r.Use(authmw.RequireAuth(d.Validator, d.Logger))
		r.Use(authmw.RequireRole(authmw.RoleAuditor, d.Logger))
		d.Verification.RegisterHistory(r)
	})

	return r
}
