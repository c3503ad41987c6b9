package models

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	dErrors "docverify/pkg/domain-errors"
	audit "docverify/pkg/platform/audit"
)

// HistoryQuery filters GET /verify/history/{documentId}.
type HistoryQuery struct {
	From    time.Time
	To      time.Time
	Results []audit.Result
	Limit   int
}

// ParseHistoryQuery reads from, to (RFC 3339), result (repeatable or comma
// separated) and limit.
func ParseHistoryQuery(v url.Values) (HistoryQuery, error) {
	var q HistoryQuery
	var err error
	if q.From, err = parseTime(v.Get("from"), "from"); err != nil {
		return q, err
	}
	if q.To, err = parseTime(v.Get("to"), "to"); err != nil {
		return q, err
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return q, dErrors.New(dErrors.CodeValidation, "from must be before to")
	}
	for _, raw := range v["result"] {
		for part := range strings.SplitSeq(raw, ",") {
			r := audit.Result(strings.TrimSpace(part))
			if r == "" {
				continue
			}
			if !r.IsValid() {
				return q, dErrors.New(dErrors.CodeValidation, "unknown result filter: "+string(r))
			}
			q.Results = append(q.Results, r)
		}
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return q, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
		}
		q.Limit = min(n, audit.MaxHistoryLimit)
	}
	return q, nil
}

func parseTime(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, field+" must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

func (q HistoryQuery) ToAuditQuery() audit.Query {
	return audit.Query{From: q.From, To: q.To, Results: q.Results, Limit: q.Limit}
}

// HistoryEvent is one scrubbed audit row as exposed to auditors.
type HistoryEvent struct {
	EventID             string    `json:"eventId"`
	Kind                string    `json:"kind"`
	Timestamp           time.Time `json:"timestamp"`
	Result              string    `json:"result"`
	AnonymizedSourceIP  string    `json:"anonymizedSourceIp,omitempty"`
	CountryCode         string    `json:"countryCode,omitempty"`
	AnonymizedUserAgent string    `json:"anonymizedUserAgent,omitempty"`
	Actor               string    `json:"actor,omitempty"`
	Detail              string    `json:"detail,omitempty"`
}

type HistoryResponse struct {
	DocumentID string         `json:"documentId"`
	Events     []HistoryEvent `json:"events"`
}

func NewHistoryResponse(documentID string, events []audit.Event) HistoryResponse {
	out := HistoryResponse{DocumentID: documentID, Events: make([]HistoryEvent, 0, len(events))}
	for _, e := range events {
		src := e.Source()
		out.Events = append(out.Events, HistoryEvent{
			EventID:             e.ID.String(),
			Kind:                string(e.Kind),
			Timestamp:           e.Timestamp,
			Result:              string(e.Result),
			AnonymizedSourceIP:  src.IP(),
			CountryCode:         e.CountryCode,
			AnonymizedUserAgent: src.UserAgent(),
			Actor:               e.Actor,
			Detail:              e.Detail,
		})
	}
	return out
}
