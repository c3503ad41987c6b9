// Package domain holds the primitives shared across docverify packages.
// Values are validated when parsed at trust boundaries, so code holding a
// DocumentID or DocumentType can rely on it being well formed.
package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "docverify/pkg/domain-errors"
)

// DocumentID identifies an issued document. It is opaque to verifiers, who
// only ever see the verification code.
type DocumentID uuid.UUID

func NewDocumentID() DocumentID {
	return DocumentID(uuid.New())
}

// ParseDocumentID rejects empty, malformed and nil UUIDs.
func ParseDocumentID(s string) (DocumentID, error) {
	if s == "" {
		return DocumentID{}, dErrors.New(dErrors.CodeBadRequest, "document id is required")
	}
	if !utf8.ValidString(s) {
		return DocumentID{}, dErrors.New(dErrors.CodeBadRequest, "document id is not valid UTF-8")
	}
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return DocumentID{}, dErrors.New(dErrors.CodeBadRequest, "document id is not a valid UUID")
	}
	if u == uuid.Nil {
		return DocumentID{}, dErrors.New(dErrors.CodeBadRequest, "document id cannot be nil")
	}
	return DocumentID(u), nil
}

func (id DocumentID) String() string { return uuid.UUID(id).String() }

func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id DocumentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *DocumentID) UnmarshalText(b []byte) error {
	parsed, err := ParseDocumentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
