package models

import (
	"strings"
	"time"

	"docverify/internal/document/encoder"
	"docverify/internal/ratelimit/models"
	audit "docverify/pkg/platform/audit"
)

// InputKind is how the verifier identified the document.
type InputKind string

const (
	InputCode      InputKind = "code"
	InputQR        InputKind = "qr"
	InputHash      InputKind = "hash"
	InputMalformed InputKind = "malformed"
)

const contentHashLen = 64

// Request is one verification attempt. SourceIP and UserAgent are raw
// transport values; they are scrubbed before anything is recorded.
type Request struct {
	Input     string
	SourceIP  string
	UserAgent string
}

// ParsedInput is the lookup key extracted from a raw input.
type ParsedInput struct {
	Kind InputKind
	// Code is the formatted verification code for code and qr inputs.
	Code string
	// Hash is the content hash for hash inputs.
	Hash string
	// HashPrefix is the content hash prefix bound into a QR payload, if any.
	HashPrefix string
}

// ParseInput accepts a verification code in any case with or without dashes,
// a scanned QR payload, or a 64-character hex content hash.
func ParseInput(raw string) ParsedInput {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxPayloadLen {
		return ParsedInput{Kind: InputMalformed}
	}
	if strings.Contains(raw, "/verify/") {
		code, prefix, err := encoder.ParseQRPayload(raw)
		if err != nil {
			return ParsedInput{Kind: InputMalformed}
		}
		return ParsedInput{Kind: InputQR, Code: code, HashPrefix: prefix}
	}
	if len(raw) == contentHashLen && isHex(raw) {
		return ParsedInput{Kind: InputHash, Hash: strings.ToLower(raw)}
	}
	if encoder.ValidCode(raw) {
		return ParsedInput{Kind: InputCode, Code: encoder.FormatCode(raw)}
	}
	return ParsedInput{Kind: InputMalformed}
}

func isHex(s string) bool {
	for i := range len(s) {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// Outcome is the result of one verification. Only Result, DocumentType and
// IssuedAt ever reach the public response.
type Outcome struct {
	Result       audit.Result
	DocumentID   string
	DocumentType string
	IssuedAt     *time.Time
	Country      string
	RateLimit    *models.RateLimitResult
	// AuditDeferred is set when the audit write was queued for retry.
	AuditDeferred bool
}

const maxPayloadLen = 512

// VerifyRequest is the body of POST /verify.
type VerifyRequest struct {
	Payload string `json:"payload"`
}

func (r *VerifyRequest) Normalize() {
	if r != nil {
		r.Payload = strings.TrimSpace(r.Payload)
	}
}

// VerifyResponse is the public verification response.
type VerifyResponse struct {
	Status       string     `json:"status"`
	DocumentType string     `json:"documentType,omitempty"`
	IssuedAt     *time.Time `json:"issuedAt,omitempty"`
}

func NewVerifyResponse(o *Outcome) VerifyResponse {
	return VerifyResponse{
		Status:       string(o.Result),
		DocumentType: o.DocumentType,
		IssuedAt:     o.IssuedAt,
	}
}
