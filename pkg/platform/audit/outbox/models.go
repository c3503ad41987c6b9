package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is a pending event in the outbox table, written in the same
// transaction as the audit row it mirrors.
type Entry struct {
	ID            uuid.UUID
	AggregateType string // "document" or "audit"
	AggregateID   string
	EventType     string
	Payload       []byte // JSON-encoded audit.Event
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil while pending
}

func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

func NewEntry(aggregateType, aggregateID, eventType string, payload []byte, now time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
	}
}

// Store is the outbox persistence. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append joins the transaction carried by ctx, if any.
	Append(ctx context.Context, entry *Entry) error
	// FetchUnprocessed returns up to limit pending entries, oldest first.
	FetchUnprocessed(ctx context.Context, limit int) ([]*Entry, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	CountPending(ctx context.Context) (int64, error)
	// DeleteProcessedBefore removes published entries older than before.
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
