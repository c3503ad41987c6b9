package audit

import (
	"context"
	"slices"
	"time"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Store is the append-only audit backend.
type Store interface {
	Append(ctx context.Context, event Event) error
	// ListByDocument returns matching events for a document, newest first.
	ListByDocument(ctx context.Context, documentID string, q Query) ([]Event, error)
}

// Query narrows a history listing. Zero values mean "no bound".
type Query struct {
	From    time.Time
	To      time.Time
	Results []Result
	Limit   int
}

// Normalize clamps the limit into [1, MaxHistoryLimit].
func (q *Query) Normalize() {
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
}

// Matches reports whether e falls inside the query bounds. To is exclusive.
func (q Query) Matches(e Event) bool {
	if !q.From.IsZero() && e.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.Timestamp.Before(q.To) {
		return false
	}
	if len(q.Results) > 0 && !slices.Contains(q.Results, e.Result) {
		return false
	}
	return true
}
