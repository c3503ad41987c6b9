package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"docverify/pkg/platform/audit/outbox"
)

type Store struct {
	mu      sync.Mutex
	entries []*outbox.Entry
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, entry *outbox.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *Store) FetchUnprocessed(_ context.Context, limit int) ([]*outbox.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range s.entries {
		if len(out) >= limit {
			break
		}
		if e.IsPending() {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) MarkProcessed(_ context.Context, id uuid.UUID, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id && e.IsPending() {
			t := processedAt
			e.ProcessedAt = &t
			return nil
		}
	}
	return fmt.Errorf("outbox entry not found or already processed: %s", id)
}

func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.IsPending() {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = slices.DeleteFunc(s.entries, func(e *outbox.Entry) bool {
		return e.ProcessedAt != nil && e.ProcessedAt.Before(before)
	})
	return int64(n - len(s.entries)), nil
}
