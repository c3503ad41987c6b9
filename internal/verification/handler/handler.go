package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	rlMiddleware "docverify/internal/ratelimit/middleware"
	"docverify/internal/verification/models"
	dErrors "docverify/pkg/domain-errors"
	audit "docverify/pkg/platform/audit"
	"docverify/pkg/platform/httputil"
	"docverify/pkg/requestcontext"
)

// HeaderAuditStatus is set to "deferred" when the audit row for a request
// was queued instead of written inline.
const HeaderAuditStatus = "X-Audit-Status"

// Service defines the public verification operations.
type Service interface {
	Verify(ctx context.Context, req models.Request) (*models.Outcome, error)
	History(ctx context.Context, documentID string, q models.HistoryQuery) ([]audit.Event, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public verification endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/verify/{code}", h.HandleVerifyCode)
	r.Post("/verify", h.HandleVerifyPayload)
}

// RegisterHistory mounts the auditor history endpoint. The caller wraps r
// with authentication and the auditor role.
func (h *Handler) RegisterHistory(r chi.Router) {
	r.Get("/verify/history/{documentId}", h.HandleHistory)
}

// HandleVerifyCode handles GET /verify/{code}.
func (h *Handler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, chi.URLParam(r, "code"))
}

// HandleVerifyPayload handles POST /verify with a scanned QR payload,
// verification code or content hash in the body. An unreadable body is
// verified as an empty payload, so it is rate limited and audited like any
// other malformed input.
func (h *Handler) HandleVerifyPayload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "unreadable verification body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		req = models.VerifyRequest{}
	}
	req.Normalize()
	h.verify(w, r, req.Payload)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request, input string) {
	ctx := r.Context()
	out, err := h.service.Verify(ctx, models.Request{
		Input:     input,
		SourceIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
	})
	if out != nil {
		rlMiddleware.AddRateLimitHeaders(w, out.RateLimit)
		if out.AuditDeferred {
			w.Header().Set(HeaderAuditStatus, "deferred")
		}
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	switch out.Result {
	case audit.ResultRejectedRateLimit:
		rlMiddleware.WriteRateLimitExceeded(w, out.RateLimit)
	case audit.ResultRejectedGeo:
		httputil.WriteError(w, dErrors.New(dErrors.CodeGeoRestricted, "verification is not available from this location"))
	default:
		httputil.WriteJSON(w, http.StatusOK, models.NewVerifyResponse(out))
	}
}

// HandleHistory handles GET /verify/history/{documentId}.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID := chi.URLParam(r, "documentId")

	q, err := models.ParseHistoryQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.service.History(ctx, documentID, q)
	if err != nil {
		level := slog.LevelWarn
		if dErrors.CodeOf(err) == dErrors.CodeUnavailable {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "verification history failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "verification history read",
		"request_id", requestcontext.RequestID(ctx),
		"document_id", documentID,
		"auditor", requestcontext.Principal(ctx).Subject,
		"events", len(events),
	)
	httputil.WriteJSON(w, http.StatusOK, models.NewHistoryResponse(documentID, events))
}
