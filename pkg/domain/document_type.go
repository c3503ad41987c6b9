package domain

import (
	"slices"
	"strings"

	dErrors "docverify/pkg/domain-errors"
)

// DocumentType is one of the supported document categories.
type DocumentType string

const (
	BirthCertificate         DocumentType = "birth_certificate"
	DeathCertificate         DocumentType = "death_certificate"
	MarriageCertificate      DocumentType = "marriage_certificate"
	IdentityDocument         DocumentType = "identity_document"
	Passport                 DocumentType = "passport"
	TravelDocument           DocumentType = "travel_document"
	PermanentResidencePermit DocumentType = "permanent_residence_permit"
	Visa                     DocumentType = "visa"
	RefugeeStatus            DocumentType = "refugee_status"
)

var documentTypes = []DocumentType{
	BirthCertificate,
	DeathCertificate,
	MarriageCertificate,
	IdentityDocument,
	Passport,
	TravelDocument,
	PermanentResidencePermit,
	Visa,
	RefugeeStatus,
}

// DocumentTypes lists every supported type.
func DocumentTypes() []DocumentType {
	return slices.Clone(documentTypes)
}

// ParseDocumentType accepts any casing and surrounding whitespace.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unsupported document type: "+s)
	}
	return t, nil
}

func (t DocumentType) IsValid() bool {
	return slices.Contains(documentTypes, t)
}

func (t DocumentType) String() string { return string(t) }

// Title is the human label printed on the artifact.
func (t DocumentType) Title() string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
