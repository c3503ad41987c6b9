package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "docverify/pkg/platform/audit"
	"docverify/pkg/platform/audit/outbox"
	txcontext "docverify/pkg/platform/tx"
)

// Store implements audit.Store on audit_events and mirrors every row into the
// outbox in the same transaction, so the Kafka feed never diverges from the
// queryable history.
type Store struct {
	db     *sql.DB
	outbox outbox.Store
}

func New(db *sql.DB, ob outbox.Store) *Store {
	return &Store{db: db, outbox: ob}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType, aggregateID := "audit", event.ID.String()
	if event.DocumentID != "" {
		aggregateType, aggregateID = "document", event.DocumentID
	}

	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		var documentID *uuid.UUID
		if event.DocumentID != "" {
			parsed, err := uuid.Parse(event.DocumentID)
			if err != nil {
				return fmt.Errorf("audit event document id: %w", err)
			}
			documentID = &parsed
		}
		_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
			INSERT INTO audit_events (
				id, kind, category, document_id, timestamp, result,
				anonymized_source_ip, country_code, anonymized_user_agent,
				actor, detail, request_id
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING`,
			event.ID,
			string(event.Kind),
			string(event.Kind.Category()),
			documentID,
			event.Timestamp,
			string(event.Result),
			event.AnonymizedSourceIP,
			event.CountryCode,
			event.AnonymizedUserAgent,
			event.Actor,
			event.Detail,
			event.RequestID,
		)
		if err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
		if s.outbox == nil {
			return nil
		}
		entry := outbox.NewEntry(aggregateType, aggregateID, string(event.Kind), payload, event.Timestamp)
		return s.outbox.Append(ctx, entry)
	})
}

// ListByDocument filters in SQL so the limit applies after the filters.
func (s *Store) ListByDocument(ctx context.Context, documentID string, q audit.Query) ([]audit.Event, error) {
	q.Normalize()
	docID, err := uuid.Parse(documentID)
	if err != nil {
		// Not a document id this store could have written.
		return nil, nil
	}

	results := make([]string, 0, len(q.Results))
	for _, r := range q.Results {
		results = append(results, string(r))
	}
	var from, to sql.NullTime
	if !q.From.IsZero() {
		from = sql.NullTime{Time: q.From, Valid: true}
	}
	if !q.To.IsZero() {
		to = sql.NullTime{Time: q.To, Valid: true}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, document_id, timestamp, result,
			anonymized_source_ip, country_code, anonymized_user_agent,
			actor, detail, request_id
		FROM audit_events
		WHERE document_id = $1
			AND ($2::timestamptz IS NULL OR timestamp >= $2)
			AND ($3::timestamptz IS NULL OR timestamp < $3)
			AND (cardinality($4::text[]) = 0 OR result = ANY($4::text[]))
		ORDER BY timestamp DESC
		LIMIT $5`,
		docID, from, to, pq.Array(results), q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			e          audit.Event
			kind       string
			result     string
			documentID *uuid.UUID
		)
		err := rows.Scan(
			&e.ID,
			&kind,
			&documentID,
			&e.Timestamp,
			&result,
			&e.AnonymizedSourceIP,
			&e.CountryCode,
			&e.AnonymizedUserAgent,
			&e.Actor,
			&e.Detail,
			&e.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Kind = audit.Kind(kind)
		e.Result = audit.Result(result)
		if documentID != nil {
			e.DocumentID = documentID.String()
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
