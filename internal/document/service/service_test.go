package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"docverify/internal/document/artifact"
	"docverify/internal/document/canonical"
	"docverify/internal/document/encoder"
	"docverify/internal/document/models"
	"docverify/internal/document/signer"
	docstore "docverify/internal/document/store/memory"
	"docverify/internal/platform/config"
	"docverify/pkg/domain"
	dErrors "docverify/pkg/domain-errors"
	audit "docverify/pkg/platform/audit"
	auditmemory "docverify/pkg/platform/audit/store/memory"
)

var fixedNow = time.Date(2026, 3, 4, 10, 30, 15, 999, time.UTC)

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	docs      *docstore.Store
	events    *auditmemory.InMemoryStore
	artifacts *artifact.MemoryStore
	signer    *signer.Signer
	service   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.docs = docstore.New()
	s.events = auditmemory.NewInMemoryStore()
	s.artifacts = artifact.NewMemoryStore()

	keys := signer.NewKeyring()
	key, err := signer.GenerateEd25519("k1")
	s.Require().NoError(err)
	s.Require().NoError(keys.Add(key))
	s.signer = signer.New(keys)

	s.service = s.newService()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	enc, err := encoder.New("https://verify.example.gov", []byte("microprint-secret"))
	s.Require().NoError(err)
	policy := config.StaticPolicy(config.DefaultPolicy("ZA"))
	base := []Option{
		WithArtifacts(s.artifacts),
		WithClock(func() time.Time { return fixedNow }),
	}
	return New(s.docs, s.signer, enc, policy,
		audit.NewComplianceWriter(s.events, nil, nil),
		append(base, opts...)...)
}

func passportRequest() *models.IssueRequest {
	return &models.IssueRequest{
		DocumentType: "Passport",
		ApplicantData: map[string]string{
			"Full_Name":       "  Thandi Mokoena ",
			"date_of_birth":   "1990-05-01",
			"nationality":     "ZA",
			"passport_number": "A1234567",
			"eye_colour":      "brown",
		},
		IssuerContext: models.IssuerContext{IssuerOffice: "Pretoria Head Office", IssuedBy: "officer-7"},
	}
}

func (s *ServiceSuite) generationEvents(id string) []audit.Event {
	events, err := s.events.ListByDocument(s.ctx, id, audit.Query{Results: []audit.Result{audit.ResultIssued}})
	s.Require().NoError(err)
	return events
}

func (s *ServiceSuite) TestGenerateStoresSignedRecord() {
	rec, err := s.service.Generate(s.ctx, passportRequest())
	s.Require().NoError(err)

	s.Equal(domain.Passport, rec.DocumentType)
	s.Equal(models.StatusActive, rec.Status)
	s.Equal(fixedNow.Truncate(time.Second), rec.IssuedAt)
	s.True(encoder.ValidCode(rec.VerificationCode))
	s.Contains(rec.QRPayload, "/verify/"+rec.VerificationCode)
	s.Equal("k1", rec.KeyID)

	s.Run("only required fields are digested", func() {
		s.Len(rec.ApplicantDigest, 4)
		s.NotContains(rec.ApplicantDigest, "eye_colour")
		for _, v := range rec.ApplicantDigest {
			s.NotContains(v, "Mokoena")
		}
	})

	s.Run("signature verifies over the canonical content", func() {
		content, err := canonical.Canonicalize(rec.Canonical())
		s.Require().NoError(err)
		s.True(s.signer.VerifyContent(content, rec.ContentHash, rec.Signature, rec.KeyID))
	})

	s.Run("one generation event", func() {
		events := s.generationEvents(rec.ID.String())
		s.Require().Len(events, 1)
		s.Equal(audit.KindGeneration, events[0].Kind)
		s.Equal("officer-7", events[0].Actor)
	})

	s.Run("artifact rendered", func() {
		pdf, url, err := s.service.Artifact(s.ctx, rec.ID.String())
		s.Require().NoError(err)
		s.Empty(url)
		s.True(len(pdf) > 4 && string(pdf[:4]) == "%PDF")
	})
}

func (s *ServiceSuite) TestGenerateValidation() {
	cases := []struct {
		name   string
		mutate func(*models.IssueRequest)
		code   dErrors.Code
	}{
		{"unknown type", func(r *models.IssueRequest) { r.DocumentType = "library_card" }, dErrors.CodeValidation},
		{"missing required field", func(r *models.IssueRequest) { delete(r.ApplicantData, "nationality") }, dErrors.CodeValidation},
		{"blank required field", func(r *models.IssueRequest) { r.ApplicantData["nationality"] = "   " }, dErrors.CodeValidation},
		{"no applicant data", func(r *models.IssueRequest) { r.ApplicantData = nil }, dErrors.CodeValidation},
		{"unknown superseded document", func(r *models.IssueRequest) { r.Supersedes = domain.NewDocumentID().String() }, dErrors.CodeValidation},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			req := passportRequest()
			tc.mutate(req)
			_, err := s.service.Generate(s.ctx, req)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
	s.Zero(s.docs.Count())
}

func (s *ServiceSuite) TestGenerateRejectedInDegradedMode() {
	svc := s.newService(WithMode(config.ModeDegraded))
	_, err := svc.Generate(s.ctx, passportRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Zero(s.docs.Count())
}

func (s *ServiceSuite) TestGenerateRetriesCodeCollision() {
	first, err := s.service.Generate(s.ctx, passportRequest())
	s.Require().NoError(err)

	fresh, err := encoder.NewVerificationCode()
	s.Require().NoError(err)
	codes := []string{first.VerificationCode, first.VerificationCode, fresh}
	svc := s.newService(WithCodeGenerator(func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}))

	rec, err := svc.Generate(s.ctx, passportRequest())
	s.Require().NoError(err)
	s.Equal(fresh, rec.VerificationCode)
}

func (s *ServiceSuite) TestGenerateGivesUpAfterRepeatedCollisions() {
	first, err := s.service.Generate(s.ctx, passportRequest())
	s.Require().NoError(err)

	svc := s.newService(WithCodeGenerator(func() (string, error) { return first.VerificationCode, nil }))
	_, err = svc.Generate(s.ctx, passportRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(1, s.docs.Count())
}

func (s *ServiceSuite) TestGenerateFailsClosedWhenAuditFails() {
	enc, err := encoder.New("https://verify.example.gov", []byte("microprint-secret"))
	s.Require().NoError(err)
	svc := New(s.docs, s.signer, enc, config.StaticPolicy(config.DefaultPolicy("ZA")), failingAudit{})

	_, err = svc.Generate(s.ctx, passportRequest())
	s.Require().Error(err)
	s.False(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Zero(s.docs.Count(), "a failed issuance leaves no record behind")
}

func (s *ServiceSuite) TestSupersedeLosingRevokeRaceLeavesNoOrphan() {
	old, err := s.service.Generate(s.ctx, passportRequest())
	s.Require().NoError(err)

	enc, err := encoder.New("https://verify.example.gov", []byte("microprint-secret"))
	s.Require().NoError(err)
	racing := &revokedMeanwhile{Store: s.docs}
	svc := New(racing, s.signer, enc, config.StaticPolicy(config.DefaultPolicy("ZA")),
		audit.NewComplianceWriter(s.events, nil, nil))

	req := passportRequest()
	req.Supersedes = old.ID.String()
	_, err = svc.Generate(s.ctx, req)
	s.Require().Error(err)

	s.Equal(1, s.docs.Count(), "the replacement record was rolled back")
	issued := 0
	for _, e := range s.events.All() {
		if e.Kind == audit.KindGeneration {
			issued++
		}
	}
	s.Equal(1, issued)
}

func (s *ServiceSuite) TestSupersedeAuditFailureRestoresOriginal() {
	old, err := s.service.Generate(s.ctx, passportRequest())
	s.Require().NoError(err)

	enc, err := encoder.New("https://verify.example.gov", []byte("microprint-secret"))
	s.Require().NoError(err)
	writer := &failOnKind{next: audit.NewComplianceWriter(s.events, nil, nil), kind: audit.KindGeneration}
	svc := New(s.docs, s.signer, enc, config.StaticPolicy(config.DefaultPolicy("ZA")), writer)

	req := passportRequest()
	req.Supersedes = old.ID.String()
	_, err = svc.Generate(s.ctx, req)
	s.Require().Error(err)

	s.Equal(1, s.docs.Count())
	reloaded, err := s.service.Get(s.ctx, old.ID.String())
	s.Require().NoError(err)
	s.Equal(models.StatusActive, reloaded.Status)
	s.Empty(reloaded.RevokeReason)

	revocations, err := s.events.ListByDocument(s.ctx, old.ID.String(), audit.Query{Results: []audit.Result{audit.ResultRevokedByIssuer}})
	s.Require().NoError(err)
	s.Empty(revocations, "the revocation event was rolled back with the revocation")

	s.Run("the original can still be superseded", func() {
		replacement, err := s.service.Generate(s.ctx, req)
		s.Require().NoError(err)
		s.Equal(old.ID.String(), replacement.Supersedes)
	})
}

func (s *ServiceSuite) TestArtifactFailureDoesNotUndoIssuance() {
	svc := s.newService(WithArtifacts(brokenArtifacts{}))
	rec, err := svc.Generate(s.ctx, passportRequest())
	s.Require().NoError(err)
	s.Equal(1, s.docs.Count())

	_, _, err = svc.Artifact(s.ctx, rec.ID.String())
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ServiceSuite) TestSupersede() {
	old, err := s.service.Generate(s.ctx, passportRequest())
	s.Require().NoError(err)

	req := passportRequest()
	req.Supersedes = old.ID.String()
	replacement, err := s.service.Generate(s.ctx, req)
	s.Require().NoError(err)
	s.Equal(old.ID.String(), replacement.Supersedes)

	reloaded, err := s.service.Get(s.ctx, old.ID.String())
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, reloaded.Status)
	s.Equal(models.ReasonSuperseded, reloaded.RevokeReason)

	revocations, err := s.events.ListByDocument(s.ctx, old.ID.String(), audit.Query{Results: []audit.Result{audit.ResultRevokedByIssuer}})
	s.Require().NoError(err)
	s.Len(revocations, 1)

	s.Run("cannot supersede twice", func() {
		again := passportRequest()
		again.Supersedes = old.ID.String()
		_, err := s.service.Generate(s.ctx, again)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestRevoke() {
	rec, err := s.service.Generate(s.ctx, passportRequest())
	s.Require().NoError(err)

	revoked, err := s.service.Revoke(s.ctx, rec.ID.String(),
		&models.RevokeRequest{Reason: "lost, reported by holder at 0821234567"}, "officer-9")
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, revoked.Status)
	s.NotContains(revoked.RevokeReason, "0821234567")

	s.Run("second revoke conflicts", func() {
		_, err := s.service.Revoke(s.ctx, rec.ID.String(), &models.RevokeRequest{Reason: "again"}, "officer-9")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown document", func() {
		_, err := s.service.Revoke(s.ctx, domain.NewDocumentID().String(), &models.RevokeRequest{Reason: "x"}, "officer-9")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("malformed id", func() {
		_, err := s.service.Revoke(s.ctx, "not-an-id", &models.RevokeRequest{Reason: "x"}, "officer-9")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestTranslateStoreErrorKeepsUnavailableDistinct() {
	err := translateStoreError(context.DeadlineExceeded, "document")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.False(dErrors.HasCode(err, dErrors.CodeNotFound))
}

type failingAudit struct{}

func (failingAudit) Emit(context.Context, audit.Event) error {
	return errors.New("audit store down")
}

// revokedMeanwhile revokes the target outside the caller's transaction just
// before the caller tries, as a concurrent revocation would.
type revokedMeanwhile struct {
	*docstore.Store
}

func (r *revokedMeanwhile) RevokeIfActive(ctx context.Context, id domain.DocumentID, at time.Time, reason string) (*models.DocumentRecord, error) {
	if _, err := r.Store.RevokeIfActive(context.Background(), id, at, "fraud"); err != nil {
		return nil, err
	}
	return r.Store.RevokeIfActive(ctx, id, at, reason)
}

type failOnKind struct {
	next AuditWriter
	kind audit.Kind
}

func (f *failOnKind) Emit(ctx context.Context, event audit.Event) error {
	if event.Kind == f.kind {
		return errors.New("audit store down")
	}
	return f.next.Emit(ctx, event)
}

type brokenArtifacts struct{}

func (brokenArtifacts) Put(context.Context, string, []byte) error {
	return errors.New("bucket unreachable")
}

func (brokenArtifacts) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("bucket unreachable")
}

func (brokenArtifacts) URL(context.Context, string) (string, error) {
	return "", errors.New("bucket unreachable")
}
