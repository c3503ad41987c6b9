package artifact

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("artifact not found")

// Store keeps rendered artifacts keyed by document id.
type Store interface {
	Put(ctx context.Context, documentID string, pdf []byte) error
	Get(ctx context.Context, documentID string) ([]byte, error)
	// URL returns a time-limited download link, or "" when the backend
	// cannot produce one and the bytes must be served directly.
	URL(ctx context.Context, documentID string) (string, error)
}

func objectKey(documentID string) string {
	return "documents/" + documentID + ".pdf"
}

type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, documentID string, pdf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey(documentID)] = append([]byte(nil), pdf...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, documentID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[objectKey(documentID)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) URL(context.Context, string) (string, error) {
	return "", nil
}
