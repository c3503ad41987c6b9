package models

import (
	"encoding/hex"
	"time"

	"docverify/internal/document/canonical"
	"docverify/pkg/domain"
	dErrors "docverify/pkg/domain-errors"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// ReasonSuperseded is the revoke reason recorded when a new document
// replaces an old one.
const ReasonSuperseded = "superseded"

// DocumentRecord is the persisted fingerprint of an issued document.
//
// Invariants:
//   - Every field except Status, RevokedAt and RevokeReason is immutable
//     after Create
//   - Status moves active -> revoked only, never back
//   - VerificationCode is unique for all time, including revoked records
//   - ContentHash is the hash of Canonical(); Signature signs ContentHash
//
// Full applicant data is never stored: ApplicantDigest holds salted per-field
// hashes that are enough to re-derive the content hash.
type DocumentRecord struct {
	ID               domain.DocumentID   `json:"document_id"`
	DocumentType     domain.DocumentType `json:"document_type"`
	IssuedAt         time.Time           `json:"issued_at"`
	IssuerOffice     string              `json:"issuer_office"`
	IssuedBy         string              `json:"issued_by"`
	Status           Status              `json:"status"`
	CanonicalVersion int                 `json:"canonical_version"`
	ApplicantSalt    string              `json:"applicant_salt"` // hex
	ApplicantDigest  map[string]string   `json:"applicant_digest"`
	ContentHash      string              `json:"content_hash"`
	Signature        string              `json:"signature"`
	KeyID            string              `json:"key_id"`
	Algorithm        string              `json:"algorithm"`
	VerificationCode string              `json:"verification_code"`
	QRPayload        string              `json:"qr_payload"`
	RevokedAt        *time.Time          `json:"revoked_at,omitempty"`
	RevokeReason     string              `json:"revoke_reason,omitempty"`
	Supersedes       string              `json:"supersedes,omitempty"`
}

func (d *DocumentRecord) IsActive() bool {
	return d.Status == StatusActive
}

// Canonical returns the signed subset of the record.
func (d *DocumentRecord) Canonical() canonical.Content {
	return canonical.Content{
		Version:          d.CanonicalVersion,
		DocumentID:       d.ID.String(),
		DocumentType:     d.DocumentType.String(),
		IssuedAt:         d.IssuedAt,
		IssuerOffice:     d.IssuerOffice,
		VerificationCode: d.VerificationCode,
		ApplicantDigest:  d.ApplicantDigest,
	}
}

// Salt decodes the applicant salt.
func (d *DocumentRecord) Salt() ([]byte, error) {
	return hex.DecodeString(d.ApplicantSalt)
}

// CanRevoke checks the active -> revoked transition.
func (d *DocumentRecord) CanRevoke() error {
	if d.Status != StatusActive {
		return dErrors.New(dErrors.CodeConflict, "document is already revoked")
	}
	return nil
}

// ApplyRevocation marks the record revoked. Call CanRevoke first.
func (d *DocumentRecord) ApplyRevocation(at time.Time, reason string) {
	at = at.UTC()
	d.Status = StatusRevoked
	d.RevokedAt = &at
	d.RevokeReason = reason
}

// Clone returns a deep copy so stores can hand out records safely.
func (d *DocumentRecord) Clone() *DocumentRecord {
	cp := *d
	if d.ApplicantDigest != nil {
		cp.ApplicantDigest = make(map[string]string, len(d.ApplicantDigest))
		for k, v := range d.ApplicantDigest {
			cp.ApplicantDigest[k] = v
		}
	}
	if d.RevokedAt != nil {
		t := *d.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}
