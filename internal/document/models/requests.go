package models

import (
	"strings"

	"docverify/pkg/domain"
	dErrors "docverify/pkg/domain-errors"
)

const (
	maxApplicantFields = 64
	maxFieldNameLen    = 64
	maxFieldValueLen   = 512
	maxOfficeLen       = 128
	maxReasonLen       = 500
)

type IssuerContext struct {
	IssuerOffice string `json:"issuerOffice"`
	// IssuedBy is filled from the authenticated principal, never the body.
	IssuedBy string `json:"-"`
}

// IssueRequest is the body of POST /documents.
type IssueRequest struct {
	DocumentType  string            `json:"documentType"`
	ApplicantData map[string]string `json:"applicantData"`
	IssuerContext IssuerContext     `json:"issuerContext"`
	Supersedes    string            `json:"supersedes,omitempty"`
}

// Normalize lowercases field names and trims values. Empty values are
// dropped so a blank required field counts as missing.
func (r *IssueRequest) Normalize() {
	if r == nil {
		return
	}
	r.DocumentType = strings.ToLower(strings.TrimSpace(r.DocumentType))
	r.IssuerContext.IssuerOffice = strings.TrimSpace(r.IssuerContext.IssuerOffice)
	r.Supersedes = strings.TrimSpace(r.Supersedes)
	if r.ApplicantData == nil {
		return
	}
	out := make(map[string]string, len(r.ApplicantData))
	for k, v := range r.ApplicantData {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	r.ApplicantData = out
}

// Validate checks shape only; required fields per document type are checked
// by the service against the current policy.
func (r *IssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.DocumentType == "" {
		return dErrors.New(dErrors.CodeValidation, "documentType is required")
	}
	if _, err := domain.ParseDocumentType(r.DocumentType); err != nil {
		return err
	}
	if len(r.ApplicantData) == 0 {
		return dErrors.New(dErrors.CodeValidation, "applicantData is required")
	}
	if len(r.ApplicantData) > maxApplicantFields {
		return dErrors.New(dErrors.CodeValidation, "applicantData has too many fields")
	}
	for k, v := range r.ApplicantData {
		if len(k) > maxFieldNameLen {
			return dErrors.New(dErrors.CodeValidation, "applicantData field name too long")
		}
		if len(v) > maxFieldValueLen {
			return dErrors.New(dErrors.CodeValidation, "applicantData."+k+" is too long")
		}
	}
	if r.IssuerContext.IssuerOffice == "" {
		return dErrors.New(dErrors.CodeValidation, "issuerContext.issuerOffice is required")
	}
	if len(r.IssuerContext.IssuerOffice) > maxOfficeLen {
		return dErrors.New(dErrors.CodeValidation, "issuerContext.issuerOffice is too long")
	}
	if r.Supersedes != "" {
		if _, err := domain.ParseDocumentID(r.Supersedes); err != nil {
			return dErrors.New(dErrors.CodeValidation, "supersedes must be a document id")
		}
	}
	return nil
}

type RevokeRequest struct {
	Reason string `json:"reason"`
}

func (r *RevokeRequest) Normalize() {
	if r != nil {
		r.Reason = strings.TrimSpace(r.Reason)
	}
}

func (r *RevokeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > maxReasonLen {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}
