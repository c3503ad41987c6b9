package service

import (
	"context"
	"encoding/hex"
	"errors"
	"slices"
	"strings"
	"time"

	"docverify/internal/document/artifact"
	"docverify/internal/document/canonical"
	"docverify/internal/document/encoder"
	"docverify/internal/document/models"
	"docverify/internal/platform/tracing"
	"docverify/pkg/domain"
	dErrors "docverify/pkg/domain-errors"
	audit "docverify/pkg/platform/audit"
	"docverify/pkg/platform/privacy"
	"docverify/pkg/platform/sentinel"
	"docverify/pkg/requestcontext"
)

const maxCodeAttempts = 5

// Generate validates, fingerprints, signs and persists a new document. On any
// validation failure nothing is written. On success exactly one record and
// one generation event are committed together; the PDF artifact is best
// effort and its failure does not undo the issuance.
func (s *Service) Generate(ctx context.Context, req *models.IssueRequest) (rec *models.DocumentRecord, err error) {
	if err := s.requireIssuance(); err != nil {
		return nil, err
	}
	start := time.Now()
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, asValidation(err)
	}
	docType := domain.DocumentType(req.DocumentType)

	ctx, span := s.tracer.Start(ctx, tracing.SpanDocumentIssue, tracing.String(tracing.AttrDocType, docType.String()))
	defer func() { span.End(err) }()

	required, err := s.requiredFields(docType, req.ApplicantData)
	if err != nil {
		return nil, err
	}

	var supersedes *models.DocumentRecord
	if req.Supersedes != "" {
		if supersedes, err = s.loadSupersedable(ctx, req.Supersedes); err != nil {
			return nil, err
		}
	}

	salt, err := canonical.NewSalt()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate applicant salt")
	}
	digest := canonical.DigestApplicant(salt, required)
	id := domain.NewDocumentID()
	issuedAt := s.now().UTC().Truncate(time.Second)

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.mintCode(ctx)
		if err != nil {
			return nil, err
		}
		if code == "" {
			continue
		}

		rec, err = s.buildRecord(id, docType, issuedAt, req, salt, digest, code)
		if err != nil {
			return nil, err
		}
		if supersedes != nil {
			rec.Supersedes = supersedes.ID.String()
		}

		err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
			return s.persist(ctx, rec, supersedes, req.IssuerContext.IssuedBy)
		})
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncCodeCollision()
			s.logger.WarnContext(ctx, "verification_code_collision", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, translateStoreError(err, "document")
		}

		s.metrics.IncIssued(docType.String())
		s.metrics.ObserveIssueDuration(time.Since(start).Seconds())
		s.logger.InfoContext(ctx, "document_issued",
			"document_id", rec.ID.String(),
			"document_type", docType,
			"key_id", rec.KeyID,
			"supersedes", rec.Supersedes,
		)
		s.storeArtifact(ctx, rec, req.ApplicantData)
		return rec, nil
	}
	return nil, dErrors.New(dErrors.CodeInternal, "could not allocate a unique verification code")
}

// requiredFields checks the applicant data against the current policy and
// returns only the required subset, which is all that gets digested.
func (s *Service) requiredFields(docType domain.DocumentType, data map[string]string) (map[string]string, error) {
	fields, ok := s.policy.Current().RequiredFields(docType.String())
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "document type is not enabled: "+docType.String())
	}
	var missing []string
	subset := make(map[string]string, len(fields))
	for _, f := range fields {
		v, ok := data[f]
		if !ok {
			missing = append(missing, f)
			continue
		}
		subset[f] = v
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, dErrors.New(dErrors.CodeValidation, "missing required applicant fields: "+strings.Join(missing, ", "))
	}
	return subset, nil
}

func (s *Service) loadSupersedable(ctx context.Context, rawID string) (*models.DocumentRecord, error) {
	old, err := s.Get(ctx, rawID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeValidation, "superseded document not found")
		}
		return nil, err
	}
	if err := old.CanRevoke(); err != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "superseded document is already revoked")
	}
	return old, nil
}

// mintCode returns "" when the fresh code is already taken.
func (s *Service) mintCode(ctx context.Context) (string, error) {
	code, err := s.newCode()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint verification code")
	}
	taken, err := s.store.ExistsCode(ctx, code)
	if err != nil {
		return "", translateStoreError(err, "document")
	}
	if taken {
		s.metrics.IncCodeCollision()
		return "", nil
	}
	return code, nil
}

func (s *Service) buildRecord(
	id domain.DocumentID,
	docType domain.DocumentType,
	issuedAt time.Time,
	req *models.IssueRequest,
	salt []byte,
	digest map[string]string,
	code string,
) (*models.DocumentRecord, error) {
	rec := &models.DocumentRecord{
		ID:               id,
		DocumentType:     docType,
		IssuedAt:         issuedAt,
		IssuerOffice:     req.IssuerContext.IssuerOffice,
		IssuedBy:         req.IssuerContext.IssuedBy,
		Status:           models.StatusActive,
		CanonicalVersion: canonical.CurrentVersion,
		ApplicantSalt:    hex.EncodeToString(salt),
		ApplicantDigest:  digest,
		VerificationCode: code,
	}
	content, err := canonical.Canonicalize(rec.Canonical())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "document content cannot be canonicalized")
	}
	sig, err := s.signer.Sign(content)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign document")
	}
	features, err := s.encoder.Encode(encoder.Input{
		DocumentID:       id.String(),
		VerificationCode: code,
		ContentHash:      sig.ContentHash,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode security features")
	}
	rec.ContentHash = sig.ContentHash
	rec.Signature = sig.Value
	rec.KeyID = sig.KeyID
	rec.Algorithm = string(sig.Algorithm)
	rec.QRPayload = features.QRPayload
	return rec, nil
}

func (s *Service) persist(ctx context.Context, rec, supersedes *models.DocumentRecord, actor string) error {
	if err := s.store.Create(ctx, rec); err != nil {
		return err
	}
	requestID := requestcontext.RequestID(ctx)
	if supersedes != nil {
		if _, err := s.store.RevokeIfActive(ctx, supersedes.ID, rec.IssuedAt, models.ReasonSuperseded); err != nil {
			return err
		}
		s.metrics.IncRevoked()
		if err := s.audit.Emit(ctx, audit.RevocationEvent{
			Timestamp:  rec.IssuedAt,
			DocumentID: supersedes.ID.String(),
			Reason:     models.ReasonSuperseded + " by " + rec.ID.String(),
			Actor:      actor,
			RequestID:  requestID,
		}.ToEvent()); err != nil {
			return err
		}
	}
	return s.audit.Emit(ctx, audit.GenerationEvent{
		Timestamp:    rec.IssuedAt,
		DocumentID:   rec.ID.String(),
		DocumentType: rec.DocumentType.String(),
		IssuerOffice: rec.IssuerOffice,
		Actor:        actor,
		Supersedes:   rec.Supersedes,
		RequestID:    requestID,
	}.ToEvent())
}

func (s *Service) storeArtifact(ctx context.Context, rec *models.DocumentRecord, applicant map[string]string) {
	if s.artifacts == nil {
		return
	}
	features, err := s.encoder.Encode(encoder.Input{
		DocumentID:       rec.ID.String(),
		VerificationCode: rec.VerificationCode,
		ContentHash:      rec.ContentHash,
	})
	if err == nil {
		var pdf []byte
		pdf, err = artifact.RenderPDF(artifact.Input{
			DocumentID:       rec.ID.String(),
			DocumentTitle:    rec.DocumentType.Title(),
			IssuedAt:         rec.IssuedAt,
			IssuerOffice:     rec.IssuerOffice,
			VerificationCode: rec.VerificationCode,
			ContentHash:      rec.ContentHash,
			KeyID:            rec.KeyID,
			ApplicantData:    applicant,
			Features:         features,
		})
		if err == nil {
			err = s.artifacts.Put(ctx, rec.ID.String(), pdf)
		}
	}
	if err != nil {
		s.metrics.IncArtifactFailure()
		s.logger.WarnContext(ctx, "artifact_store_failed",
			"document_id", rec.ID.String(),
			"error", privacy.ScrubFreeText(err.Error()),
		)
	}
}

func asValidation(err error) error {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeBadRequest:
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, "invalid document request")
}
