package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	audit "docverify/pkg/platform/audit"
	"docverify/pkg/platform/tx"
)

// InMemoryStore keeps events per document in append order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
	// orphan holds events with no document, e.g. failed lookups.
	orphan []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Append(ctx context.Context, event audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.DocumentID == "" {
		s.orphan = append(s.orphan, event)
		return nil
	}
	s.events[event.DocumentID] = append(s.events[event.DocumentID], event)
	tx.OnRollback(ctx, func() { s.drop(event.DocumentID, event.ID) })
	return nil
}

func (s *InMemoryStore) drop(documentID string, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[documentID] = slices.DeleteFunc(s.events[documentID], func(e audit.Event) bool {
		return e.ID == id
	})
	if len(s.events[documentID]) == 0 {
		delete(s.events, documentID)
	}
}

func (s *InMemoryStore) ListByDocument(_ context.Context, documentID string, q audit.Query) ([]audit.Event, error) {
	q.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[documentID]
	out := make([]audit.Event, 0, min(len(stored), q.Limit))
	for _, e := range slices.Backward(stored) {
		if len(out) == q.Limit {
			break
		}
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	// Append order is newest-last but timestamps may interleave across writers.
	slices.SortStableFunc(out, func(a, b audit.Event) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out, nil
}

// All returns every stored event, for tests and the dev-mode inspector.
func (s *InMemoryStore) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]audit.Event{}, s.orphan...)
	for _, evs := range s.events {
		out = append(out, evs...)
	}
	return out
}
