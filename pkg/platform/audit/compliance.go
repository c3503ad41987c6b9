package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ComplianceWriter appends issuance and revocation events with fail-closed
// semantics: the caller blocks until the write succeeds, and an error means
// the business operation must not commit. Run it inside the same transaction
// as the state change so the record and its event land together.
type ComplianceWriter struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewComplianceWriter builds a writer; logger and metrics may be nil.
func NewComplianceWriter(store Store, logger *slog.Logger, metrics *Metrics) *ComplianceWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ComplianceWriter{store: store, logger: logger, metrics: metrics, now: time.Now}
}

// Emit writes event synchronously.
func (w *ComplianceWriter) Emit(ctx context.Context, event Event) error {
	if event.Kind.Category() != CategoryCompliance {
		return fmt.Errorf("compliance writer: %s is not a compliance event", event.Kind)
	}
	if event.DocumentID == "" {
		return errors.New("compliance event requires a document id")
	}
	event.fillDefaults(w.now())

	if err := w.store.Append(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "compliance_audit_failed",
			"kind", event.Kind,
			"document_id", event.DocumentID,
			"error", err,
		)
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}
	if w.metrics != nil {
		w.metrics.Appended.WithLabelValues(string(event.Kind)).Inc()
	}
	return nil
}
