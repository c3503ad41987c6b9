package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docverify/internal/document/canonical"
	docModels "docverify/internal/document/models"
	"docverify/internal/geoip"
	"docverify/internal/platform/tracing"
	rlModels "docverify/internal/ratelimit/models"
	"docverify/internal/verification/metrics"
	"docverify/internal/verification/models"
	"docverify/pkg/domain"
	dErrors "docverify/pkg/domain-errors"
	audit "docverify/pkg/platform/audit"
	"docverify/pkg/platform/privacy"
	"docverify/pkg/platform/sentinel"
	"docverify/pkg/requestcontext"
)

type RateLimiter interface {
	Check(ctx context.Context, sourceIP string) (*rlModels.RateLimitResult, error)
}

type GeoResolver interface {
	Resolve(ctx context.Context, rawIP string) geoip.Resolution
}

type GeoPolicy interface {
	Allows(r geoip.Resolution) bool
}

// DocumentStore is the read side of the document store.
type DocumentStore interface {
	FindByID(ctx context.Context, id domain.DocumentID) (*docModels.DocumentRecord, error)
	FindByCode(ctx context.Context, code string) (*docModels.DocumentRecord, error)
	FindByContentHash(ctx context.Context, hash string) (*docModels.DocumentRecord, error)
}

type SignatureVerifier interface {
	VerifyContent(content []byte, contentHash, signature, keyID string) bool
	ActiveKeyID() string
}

type AuditRecorder interface {
	Record(ctx context.Context, event audit.Event) error
}

type HistoryStore interface {
	ListByDocument(ctx context.Context, documentID string, q audit.Query) ([]audit.Event, error)
}

// Service runs the public verification state machine.
type Service struct {
	limiter  RateLimiter
	resolver GeoResolver
	geo      GeoPolicy
	store    DocumentStore
	verifier SignatureVerifier
	recorder AuditRecorder
	history  HistoryStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracing.Tracer
	now      func() time.Time
	decoy    decoy
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t tracing.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHistory enables History; without it History reports unavailable.
func WithHistory(h HistoryStore) Option {
	return func(s *Service) { s.history = h }
}

func New(
	limiter RateLimiter,
	resolver GeoResolver,
	geo GeoPolicy,
	store DocumentStore,
	verifier SignatureVerifier,
	recorder AuditRecorder,
	opts ...Option,
) *Service {
	s := &Service{
		limiter:  limiter,
		resolver: resolver,
		geo:      geo,
		store:    store,
		verifier: verifier,
		recorder: recorder,
		logger:   slog.Default(),
		tracer:   tracing.NewNoop(),
		now:      time.Now,
		decoy:    newDecoy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify runs rate limit, geo, lookup, signature and revocation checks in
// that order and records exactly one verification event.
//
// Rejections and lookup outcomes come back as an Outcome with a nil error.
// A store failure returns the Outcome (result unavailable) together with an
// unavailable error.
func (s *Service) Verify(ctx context.Context, req models.Request) (*models.Outcome, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, tracing.SpanVerify)

	outcome, verr := s.evaluate(ctx, span, req)

	span.SetAttributes(
		tracing.String(tracing.AttrResult, string(outcome.Result)),
		tracing.String(tracing.AttrCountry, outcome.Country),
	)
	s.record(ctx, req, outcome)
	s.metrics.ObserveOutcome(string(outcome.Result), s.now().Sub(start))
	span.End(verr)
	return outcome, verr
}

func (s *Service) evaluate(ctx context.Context, span tracing.Span, req models.Request) (*models.Outcome, error) {
	out := &models.Outcome{}

	rl, err := s.limiter.Check(ctx, req.SourceIP)
	if err != nil {
		out.Result = audit.ResultUnavailable
		return out, dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limiter unavailable")
	}
	out.RateLimit = rl
	if !rl.Allowed {
		out.Result = audit.ResultRejectedRateLimit
		return out, nil
	}

	res := s.resolver.Resolve(ctx, req.SourceIP)
	out.Country = res.Country
	if !s.geo.Allows(res) {
		out.Result = audit.ResultRejectedGeo
		return out, nil
	}

	in := models.ParseInput(req.Input)
	span.SetAttributes(tracing.String(tracing.AttrInputKind, string(in.Kind)))
	rec, err := s.lookup(ctx, in)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.decoy.run(s.verifier)
			out.Result = audit.ResultNotFound
			return out, nil
		}
		out.Result = audit.ResultUnavailable
		return out, dErrors.Wrap(err, dErrors.CodeUnavailable, "document store unavailable")
	}

	out.DocumentID = rec.ID.String()
	out.DocumentType = rec.DocumentType.String()
	issuedAt := rec.IssuedAt.UTC()
	out.IssuedAt = &issuedAt

	intact := s.checkIntegrity(rec, in)
	if !intact {
		s.metrics.IncIntegrityFailure()
		s.logger.ErrorContext(ctx, "document_integrity_failure",
			"severity", "critical",
			"document_id", out.DocumentID,
			"input_kind", string(in.Kind),
			"revoked", !rec.IsActive(),
		)
	}
	switch {
	case !rec.IsActive():
		out.Result = audit.ResultRevoked
	case !intact:
		out.Result = audit.ResultInvalid
	default:
		out.Result = audit.ResultValid
	}
	return out, nil
}

func (s *Service) lookup(ctx context.Context, in models.ParsedInput) (*docModels.DocumentRecord, error) {
	switch in.Kind {
	case models.InputCode, models.InputQR:
		return s.store.FindByCode(ctx, in.Code)
	case models.InputHash:
		return s.store.FindByContentHash(ctx, in.Hash)
	default:
		return nil, sentinel.ErrNotFound
	}
}

// checkIntegrity re-canonicalizes the stored fields and verifies the
// signature. A QR payload must also carry the matching hash prefix.
func (s *Service) checkIntegrity(rec *docModels.DocumentRecord, in models.ParsedInput) bool {
	content, err := canonical.Canonicalize(rec.Canonical())
	if err != nil {
		return false
	}
	if !s.verifier.VerifyContent(content, rec.ContentHash, rec.Signature, rec.KeyID) {
		return false
	}
	if in.HashPrefix != "" && !hasPrefix(rec.ContentHash, in.HashPrefix) {
		return false
	}
	return true
}

func hasPrefix(hash, prefix string) bool {
	return len(hash) >= len(prefix) && hash[:len(prefix)] == prefix
}

// record writes the verification event. It never changes the outcome; a
// deferred write only marks it.
func (s *Service) record(ctx context.Context, req models.Request, out *models.Outcome) {
	event := audit.VerificationEvent{
		Timestamp:   s.now(),
		DocumentID:  out.DocumentID,
		Result:      out.Result,
		Source:      privacy.ScrubSource(req.SourceIP, req.UserAgent),
		CountryCode: out.Country,
		RequestID:   requestcontext.RequestID(ctx),
	}.ToEvent()

	err := s.recorder.Record(context.WithoutCancel(ctx), event)
	switch {
	case err == nil:
	case errors.Is(err, audit.ErrDeferred):
		out.AuditDeferred = true
		s.metrics.IncAuditDeferred()
		s.logger.WarnContext(ctx, "verification_audit_deferred", "result", string(out.Result))
	default:
		out.AuditDeferred = true
		s.metrics.IncAuditLost()
		s.logger.ErrorContext(ctx, "verification_audit_rejected",
			"result", string(out.Result),
			"error", err,
		)
	}
}

// History returns scrubbed audit events for a document, newest first.
func (s *Service) History(ctx context.Context, rawID string, q models.HistoryQuery) ([]audit.Event, error) {
	id, err := domain.ParseDocumentID(rawID)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "audit history is not configured")
	}
	if _, err := s.store.FindByID(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "document store unavailable")
	}
	aq := q.ToAuditQuery()
	aq.Normalize()
	events, err := s.history.ListByDocument(ctx, id.String(), aq)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "audit store unavailable")
	}
	return events, nil
}
