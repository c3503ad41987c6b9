package service

import (
	"context"

	"docverify/internal/document/models"
	"docverify/pkg/domain"
	audit "docverify/pkg/platform/audit"
	"docverify/pkg/platform/privacy"
	"docverify/pkg/requestcontext"
)

// Revoke moves an active document to revoked. The store performs the
// transition as a compare-and-swap, so of two concurrent calls exactly one
// succeeds and the other gets a conflict.
func (s *Service) Revoke(ctx context.Context, rawID string, req *models.RevokeRequest, actor string) (*models.DocumentRecord, error) {
	if err := s.requireIssuance(); err != nil {
		return nil, err
	}
	id, err := domain.ParseDocumentID(rawID)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	reason := privacy.ScrubFreeText(req.Reason)
	at := s.now().UTC()

	var rec *models.DocumentRecord
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.store.RevokeIfActive(ctx, id, at, reason)
		if err != nil {
			return err
		}
		return s.audit.Emit(ctx, audit.RevocationEvent{
			Timestamp:  at,
			DocumentID: id.String(),
			Reason:     reason,
			Actor:      actor,
			RequestID:  requestcontext.RequestID(ctx),
		}.ToEvent())
	})
	if err != nil {
		return nil, translateStoreError(err, "document")
	}

	s.metrics.IncRevoked()
	s.logger.InfoContext(ctx, "document_revoked", "document_id", id.String())
	return rec, nil
}
