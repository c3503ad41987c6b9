// Package canonical turns the logical fields of a document into the exact
// byte sequence that is hashed and signed. Issuance and verification both go
// through Canonicalize, so any two callers holding the same logical document
// produce byte-identical output.
package canonical

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Prefix is prepended to every canonical form and versions the encoding.
const Prefix = "docverify.canonical.v1\n"

// CurrentVersion is the content schema version written into new documents.
const CurrentVersion = 1

const saltSize = 16

// Content is the signed subset of a document record.
type Content struct {
	Version          int
	DocumentID       string
	DocumentType     string
	IssuedAt         time.Time
	IssuerOffice     string
	VerificationCode string
	ApplicantDigest  map[string]string
}

var (
	ErrMissingField = errors.New("canonical: required field missing")
	ErrEmptyDigest  = errors.New("canonical: applicant digest is empty")
	ErrBadVersion   = errors.New("canonical: version must be positive")
	ErrDuplicateKey = errors.New("canonical: applicant digest keys collide after normalization")
)

// Canonicalize serializes c as compact JSON with sorted keys, NFC-normalized
// and trimmed strings, and issuedAt truncated to whole seconds in UTC.
func Canonicalize(c Content) ([]byte, error) {
	if c.Version <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, c.Version)
	}
	fields := map[string]string{
		"document_id":       normalize(c.DocumentID),
		"document_type":     normalize(c.DocumentType),
		"issuer_office":     normalize(c.IssuerOffice),
		"verification_code": normalize(c.VerificationCode),
	}
	for name, v := range fields {
		if v == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	if c.IssuedAt.IsZero() {
		return nil, fmt.Errorf("%w: issued_at", ErrMissingField)
	}
	if len(c.ApplicantDigest) == 0 {
		return nil, ErrEmptyDigest
	}

	digest := make(map[string]string, len(c.ApplicantDigest))
	for k, v := range c.ApplicantDigest {
		key := normalizeKey(k)
		if key == "" {
			return nil, fmt.Errorf("%w: applicant digest key", ErrMissingField)
		}
		if _, dup := digest[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
		digest[key] = strings.ToLower(normalize(v))
	}

	doc := map[string]any{
		"applicant_digest": digest,
		"issued_at":        FormatTime(c.IssuedAt),
		"version":          c.Version,
	}
	for k, v := range fields {
		doc[k] = v
	}

	var buf bytes.Buffer
	buf.WriteString(Prefix)
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json sorts map keys, which is what makes the output stable
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("canonical: encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Hash returns the hex SHA-256 of a canonical form.
func Hash(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// FormatTime is the single timestamp encoding used in canonical content.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// NewSalt returns a fresh per-document applicant salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("canonical: salt: %w", err)
	}
	return salt, nil
}

// DigestApplicant replaces each applicant value with a salted SHA-256 so the
// record can be re-hashed without keeping the applicant's data. Empty values
// are skipped.
func DigestApplicant(salt []byte, fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		key := normalizeKey(k)
		value := normalize(v)
		if key == "" || value == "" {
			continue
		}
		h := sha256.New()
		h.Write(salt)
		h.Write([]byte{0})
		h.Write([]byte(key))
		h.Write([]byte{0})
		h.Write([]byte(value))
		out[key] = hex.EncodeToString(h.Sum(nil))
	}
	return out
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func normalizeKey(s string) string {
	return strings.ToLower(normalize(s))
}
