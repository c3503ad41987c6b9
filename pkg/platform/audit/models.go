package audit

import (
	"time"

	"github.com/google/uuid"

	"docverify/pkg/platform/privacy"
)

// EventCategory classifies audit events by their primary purpose so stores
// and sinks can apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers issuance and revocation, which carry legal
	// retention requirements.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers verification attempts, including rejected ones.
	CategorySecurity EventCategory = "security"
)

type Kind string

const (
	KindVerification Kind = "verification"
	KindGeneration   Kind = "generation"
	KindRevocation   Kind = "revocation"
)

// Category returns the category for this event kind.
func (k Kind) Category() EventCategory {
	if k == KindVerification {
		return CategorySecurity
	}
	return CategoryCompliance
}

// Result is the outcome recorded on a verification event.
type Result string

const (
	ResultValid             Result = "valid"
	ResultInvalid           Result = "invalid"
	ResultRevoked           Result = "revoked"
	ResultNotFound          Result = "not_found"
	ResultRejectedRateLimit Result = "rejected_rate_limit"
	ResultRejectedGeo       Result = "rejected_geo"
	ResultUnavailable       Result = "unavailable"

	// ResultIssued and ResultRevokedByIssuer are used on compliance events.
	ResultIssued          Result = "issued"
	ResultRevokedByIssuer Result = "revoked_by_issuer"
)

func (r Result) IsValid() bool {
	switch r {
	case ResultValid, ResultInvalid, ResultRevoked, ResultNotFound,
		ResultRejectedRateLimit, ResultRejectedGeo, ResultUnavailable,
		ResultIssued, ResultRevokedByIssuer:
		return true
	}
	return false
}

// UnknownCountry is recorded when the source country was never resolved.
const UnknownCountry = "unknown"

// Event is the stored, append-only audit row. Source fields only ever hold
// anonymized values; the typed constructors below are the only way to fill
// them.
type Event struct {
	ID                  uuid.UUID `json:"id"`
	Kind                Kind      `json:"kind"`
	DocumentID          string    `json:"document_id,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
	Result              Result    `json:"result"`
	AnonymizedSourceIP  string    `json:"anonymized_source_ip,omitempty"`
	CountryCode         string    `json:"country_code,omitempty"`
	AnonymizedUserAgent string    `json:"anonymized_user_agent,omitempty"`
	Actor               string    `json:"actor,omitempty"`
	Detail              string    `json:"detail,omitempty"`
	RequestID           string    `json:"request_id,omitempty"`
}

// VerificationEvent is one verification attempt, recorded on every path.
type VerificationEvent struct {
	Timestamp time.Time
	// DocumentID is empty when the lookup never found a document.
	DocumentID  string
	Result      Result
	Source      privacy.Source
	CountryCode string
	RequestID   string
}

func (e VerificationEvent) ToEvent() Event {
	country := e.CountryCode
	if country == "" {
		country = UnknownCountry
	}
	return Event{
		Kind:                KindVerification,
		DocumentID:          e.DocumentID,
		Timestamp:           e.Timestamp,
		Result:              e.Result,
		AnonymizedSourceIP:  e.Source.IP(),
		CountryCode:         country,
		AnonymizedUserAgent: e.Source.UserAgent(),
		RequestID:           e.RequestID,
	}
}

// GenerationEvent records a successful issuance.
type GenerationEvent struct {
	Timestamp    time.Time
	DocumentID   string
	DocumentType string
	IssuerOffice string
	Actor        string
	Supersedes   string
	RequestID    string
}

func (e GenerationEvent) ToEvent() Event {
	detail := "type=" + e.DocumentType + " office=" + privacy.ScrubFreeText(e.IssuerOffice)
	if e.Supersedes != "" {
		detail += " supersedes=" + e.Supersedes
	}
	return Event{
		Kind:       KindGeneration,
		DocumentID: e.DocumentID,
		Timestamp:  e.Timestamp,
		Result:     ResultIssued,
		Actor:      e.Actor,
		Detail:     detail,
		RequestID:  e.RequestID,
	}
}

// RevocationEvent records an active to revoked transition.
type RevocationEvent struct {
	Timestamp  time.Time
	DocumentID string
	Reason     string
	Actor      string
	RequestID  string
}

func (e RevocationEvent) ToEvent() Event {
	return Event{
		Kind:       KindRevocation,
		DocumentID: e.DocumentID,
		Timestamp:  e.Timestamp,
		Result:     ResultRevokedByIssuer,
		Actor:      e.Actor,
		Detail:     privacy.ScrubFreeText(e.Reason),
		RequestID:  e.RequestID,
	}
}

// Source rebuilds the anonymized source of a stored event.
func (e Event) Source() privacy.Source {
	return privacy.RestoreSource(e.AnonymizedSourceIP, e.AnonymizedUserAgent)
}

func (e *Event) fillDefaults(now time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Timestamp = e.Timestamp.UTC()
}
