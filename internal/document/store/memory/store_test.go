package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"docverify/internal/document/models"
	"docverify/pkg/domain"
	"docverify/pkg/platform/sentinel"
	"docverify/pkg/platform/tx"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func record(code, hash string) *models.DocumentRecord {
	return &models.DocumentRecord{
		ID:               domain.NewDocumentID(),
		DocumentType:     domain.Passport,
		IssuedAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		IssuerOffice:     "Pretoria",
		Status:           models.StatusActive,
		ApplicantDigest:  map[string]string{"full_name": "ab"},
		ContentHash:      hash,
		VerificationCode: code,
	}
}

func (s *StoreSuite) TestCreateAndFind() {
	rec := record("AAAAA-AAAAA-A", "h1")
	s.Require().NoError(s.store.Create(s.ctx, rec))

	byID, err := s.store.FindByID(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.VerificationCode, byID.VerificationCode)

	byCode, err := s.store.FindByCode(s.ctx, "AAAAA-AAAAA-A")
	s.Require().NoError(err)
	s.Equal(rec.ID, byCode.ID)

	byHash, err := s.store.FindByContentHash(s.ctx, "h1")
	s.Require().NoError(err)
	s.Equal(rec.ID, byHash.ID)

	exists, err := s.store.ExistsCode(s.ctx, "AAAAA-AAAAA-A")
	s.Require().NoError(err)
	s.True(exists)

	s.Run("returned records are copies", func() {
		byID.ApplicantDigest["full_name"] = "tampered"
		again, err := s.store.FindByID(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal("ab", again.ApplicantDigest["full_name"])
	})
}

func (s *StoreSuite) TestUniqueness() {
	s.Require().NoError(s.store.Create(s.ctx, record("CODE1", "h1")))
	s.ErrorIs(s.store.Create(s.ctx, record("CODE1", "h2")), sentinel.ErrConflict)
	s.ErrorIs(s.store.Create(s.ctx, record("CODE2", "h1")), sentinel.ErrConflict)
	s.Equal(1, s.store.Count())
}

func (s *StoreSuite) TestNotFound() {
	_, err := s.store.FindByCode(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.RevokeIfActive(s.ctx, domain.NewDocumentID(), time.Now(), "x")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestRevokeIfActive() {
	rec := record("CODE1", "h1")
	s.Require().NoError(s.store.Create(s.ctx, rec))

	updated, err := s.store.RevokeIfActive(s.ctx, rec.ID, time.Now(), "lost")
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, updated.Status)
	s.Equal("lost", updated.RevokeReason)
	s.NotNil(updated.RevokedAt)

	_, err = s.store.RevokeIfActive(s.ctx, rec.ID, time.Now(), "again")
	s.ErrorIs(err, sentinel.ErrInvalidState)

	// the code stays taken after revocation
	exists, err := s.store.ExistsCode(s.ctx, "CODE1")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *StoreSuite) TestConcurrentRevokeHasOneWinner() {
	rec := record("CODE1", "h1")
	s.Require().NoError(s.store.Create(s.ctx, rec))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Go(func() {
			if _, err := s.store.RevokeIfActive(s.ctx, rec.ID, time.Now(), "race"); err == nil {
				wins.Add(1)
			}
		})
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *StoreSuite) TestFailedRunRollsBackWrites() {
	existing := record("BBBBB-BBBBB-B", "h-existing")
	s.Require().NoError(s.store.Create(s.ctx, existing))

	fresh := record("CCCCC-CCCCC-C", "h-fresh")
	err := tx.RunCompensated(s.ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, fresh); err != nil {
			return err
		}
		if _, err := s.store.RevokeIfActive(ctx, existing.ID, time.Now(), "superseded"); err != nil {
			return err
		}
		return errors.New("audit write failed")
	})
	s.Require().Error(err)

	s.Equal(1, s.store.Count())
	_, err = s.store.FindByCode(s.ctx, fresh.VerificationCode)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByContentHash(s.ctx, fresh.ContentHash)
	s.ErrorIs(err, sentinel.ErrNotFound)

	restored, err := s.store.FindByID(s.ctx, existing.ID)
	s.Require().NoError(err)
	s.True(restored.IsActive())
	s.Nil(restored.RevokedAt)

	// the freed code can be used again
	s.NoError(s.store.Create(s.ctx, record(fresh.VerificationCode, fresh.ContentHash)))
}
