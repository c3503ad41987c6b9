package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docverify/internal/document/artifact"
	"docverify/internal/document/encoder"
	"docverify/internal/document/metrics"
	"docverify/internal/document/models"
	"docverify/internal/document/signer"
	"docverify/internal/platform/config"
	"docverify/internal/platform/tracing"
	"docverify/pkg/domain"
	dErrors "docverify/pkg/domain-errors"
	audit "docverify/pkg/platform/audit"
	"docverify/pkg/platform/sentinel"
	"docverify/pkg/platform/tx"
)

// Store is the document persistence the service needs.
type Store interface {
	Create(ctx context.Context, rec *models.DocumentRecord) error
	FindByID(ctx context.Context, id domain.DocumentID) (*models.DocumentRecord, error)
	ExistsCode(ctx context.Context, code string) (bool, error)
	RevokeIfActive(ctx context.Context, id domain.DocumentID, at time.Time, reason string) (*models.DocumentRecord, error)
}

// TxRunner groups a state change with its compliance audit row.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditWriter interface {
	Emit(ctx context.Context, event audit.Event) error
}

type PolicySource interface {
	Current() *config.Policy
}

// Service issues and revokes documents.
type Service struct {
	store     Store
	tx        TxRunner
	signer    *signer.Signer
	encoder   *encoder.Encoder
	policy    PolicySource
	audit     AuditWriter
	artifacts artifact.Store
	mode      config.Mode
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    tracing.Tracer
	now       func() time.Time
	newCode   func() (string, error)
}

type Option func(*Service)

func WithTx(tx TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

// WithArtifacts enables PDF rendering on issuance.
func WithArtifacts(store artifact.Store) Option {
	return func(s *Service) { s.artifacts = store }
}

func WithMode(mode config.Mode) Option {
	return func(s *Service) { s.mode = mode }
}

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

// WithCodeGenerator replaces the verification code source, for tests.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newCode = gen }
}

func New(store Store, sg *signer.Signer, enc *encoder.Encoder, policy PolicySource, auditWriter AuditWriter, opts ...Option) *Service {
	s := &Service{
		store:   store,
		tx:      compensatedTx{},
		signer:  sg,
		encoder: enc,
		policy:  policy,
		audit:   auditWriter,
		mode:    config.ModeDevelopment,
		logger:  slog.Default(),
		tracer:  tracing.NewNoop(),
		now:     time.Now,
		newCode: encoder.NewVerificationCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// compensatedTx undoes in-memory writes when fn fails, so a failed issuance
// or revocation leaves no state behind without a database.
type compensatedTx struct{}

func (compensatedTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return tx.RunCompensated(ctx, fn)
}

func (s *Service) requireIssuance() error {
	if !s.mode.IssuanceEnabled() {
		return dErrors.New(dErrors.CodeUnavailable, "issuance is disabled while the service runs in degraded mode")
	}
	return nil
}

// Get returns a document for its issuer.
func (s *Service) Get(ctx context.Context, rawID string) (*models.DocumentRecord, error) {
	id, err := domain.ParseDocumentID(rawID)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, "document")
	}
	return rec, nil
}

// Artifact returns either a download URL or the PDF bytes.
func (s *Service) Artifact(ctx context.Context, rawID string) (pdf []byte, url string, err error) {
	rec, err := s.Get(ctx, rawID)
	if err != nil {
		return nil, "", err
	}
	if s.artifacts == nil {
		return nil, "", dErrors.New(dErrors.CodeNotFound, "artifact not available")
	}
	id := rec.ID.String()
	url, err = s.artifacts.URL(ctx, id)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeUnavailable, "artifact store unavailable")
	}
	if url != "" {
		return nil, url, nil
	}
	pdf, err = s.artifacts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, "", dErrors.New(dErrors.CodeNotFound, "artifact not available")
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeUnavailable, "artifact store unavailable")
	}
	return pdf, "", nil
}

// translateStoreError maps infrastructure sentinels onto domain codes.
// Store failures are never reported as not found.
func translateStoreError(err error, what string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeConflict, what+" is already revoked")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, what+" already exists")
	case errors.Is(err, sentinel.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "document store unavailable")
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "document store failure")
	}
}
