package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"docverify/internal/document/models"
	dErrors "docverify/pkg/domain-errors"
	"docverify/pkg/platform/httputil"
	"docverify/pkg/requestcontext"
)

// Service defines the issuer-side document operations.
type Service interface {
	Generate(ctx context.Context, req *models.IssueRequest) (*models.DocumentRecord, error)
	Revoke(ctx context.Context, id string, req *models.RevokeRequest, actor string) (*models.DocumentRecord, error)
	Get(ctx context.Context, id string) (*models.DocumentRecord, error)
	Artifact(ctx context.Context, id string) ([]byte, string, error)
}

// Handler serves the issuer API. Authentication and the issuer role are
// enforced by the router group it is registered on.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts document endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/documents", h.HandleIssue)
	r.Get("/documents/{id}", h.HandleGet)
	r.Post("/documents/{id}/revoke", h.HandleRevoke)
	r.Get("/documents/{id}/artifact", h.HandleArtifact)
}

// HandleIssue handles POST /documents.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	principal := requestcontext.Principal(ctx)
	if principal.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	req.IssuerContext.IssuedBy = principal.Subject

	rec, err := h.service.Generate(ctx, req)
	if err != nil {
		h.logFailure(ctx, "document issuance failed", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document issued via api",
		"request_id", requestID,
		"document_id", rec.ID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	w.Header().Set("Location", "/documents/"+rec.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, models.IssueResponse{
		DocumentID:       rec.ID.String(),
		VerificationCode: rec.VerificationCode,
		QRPayload:        rec.QRPayload,
		ArtifactURL:      "/documents/" + rec.ID.String() + "/artifact",
	})
}

// HandleGet handles GET /documents/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logFailure(r.Context(), "document lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewDocumentView(rec))
}

// HandleRevoke handles POST /documents/{id}/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	rec, err := h.service.Revoke(ctx, chi.URLParam(r, "id"), req, requestcontext.Principal(ctx).Subject)
	if err != nil {
		h.logFailure(ctx, "document revocation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewDocumentView(rec))
}

// HandleArtifact handles GET /documents/{id}/artifact. Object stores that can
// presign get a redirect; otherwise the PDF is streamed.
func (h *Handler) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	pdf, url, err := h.service.Artifact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logFailure(r.Context(), "artifact fetch failed", err)
		httputil.WriteError(w, err)
		return
	}
	if url != "" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
