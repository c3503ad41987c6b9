package memory

import (
	"context"
	"sync"
	"time"

	"docverify/internal/document/models"
	"docverify/pkg/domain"
	"docverify/pkg/platform/sentinel"
	pksync "docverify/pkg/platform/sync"
	"docverify/pkg/platform/tx"
)

// Store keeps documents in memory with secondary indices on verification
// code and content hash. Revocation is serialized per document id.
type Store struct {
	mu     sync.RWMutex
	byID   map[domain.DocumentID]*models.DocumentRecord
	byCode map[string]domain.DocumentID
	byHash map[string]domain.DocumentID

	revokeLocks *pksync.ShardedMutex
}

func New() *Store {
	return &Store{
		byID:        make(map[domain.DocumentID]*models.DocumentRecord),
		byCode:      make(map[string]domain.DocumentID),
		byHash:      make(map[string]domain.DocumentID),
		revokeLocks: pksync.NewShardedMutex(),
	}
}

func (s *Store) Create(ctx context.Context, rec *models.DocumentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[rec.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byCode[rec.VerificationCode]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byHash[rec.ContentHash]; ok {
		return sentinel.ErrConflict
	}
	s.byID[rec.ID] = rec.Clone()
	s.byCode[rec.VerificationCode] = rec.ID
	s.byHash[rec.ContentHash] = rec.ID
	tx.OnRollback(ctx, func() { s.remove(rec.ID, rec.VerificationCode, rec.ContentHash) })
	return nil
}

func (s *Store) remove(id domain.DocumentID, code, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	delete(s.byCode, code)
	delete(s.byHash, hash)
}

func (s *Store) FindByID(ctx context.Context, id domain.DocumentID) (*models.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) FindByCode(ctx context.Context, code string) (*models.DocumentRecord, error) {
	return s.findByIndex(ctx, s.byCode, code)
}

func (s *Store) FindByContentHash(ctx context.Context, hash string) (*models.DocumentRecord, error) {
	return s.findByIndex(ctx, s.byHash, hash)
}

func (s *Store) findByIndex(ctx context.Context, index map[string]domain.DocumentID, key string) (*models.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := index[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) ExistsCode(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byCode[code]
	return ok, nil
}

// RevokeIfActive moves an active record to revoked and returns the updated
// copy. A record that is already revoked yields sentinel.ErrInvalidState.
func (s *Store) RevokeIfActive(ctx context.Context, id domain.DocumentID, at time.Time, reason string) (*models.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := id.String()
	s.revokeLocks.Lock(key)
	defer s.revokeLocks.Unlock(key)

	s.mu.RLock()
	current, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if current.CanRevoke() != nil {
		return nil, sentinel.ErrInvalidState
	}

	updated := current.Clone()
	updated.ApplyRevocation(at, reason)

	s.mu.Lock()
	s.byID[id] = updated
	s.mu.Unlock()
	tx.OnRollback(ctx, func() { s.restore(id, updated, current) })
	return updated.Clone(), nil
}

// restore puts back the pre-revocation record unless someone has replaced
// the revoked one since.
func (s *Store) restore(id domain.DocumentID, revoked, previous *models.DocumentRecord) {
	key := id.String()
	s.revokeLocks.Lock(key)
	defer s.revokeLocks.Unlock(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byID[id] == revoked {
		s.byID[id] = previous
	}
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
