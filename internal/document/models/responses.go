package models

import "time"

type IssueResponse struct {
	DocumentID       string `json:"documentId"`
	VerificationCode string `json:"verificationCode"`
	QRPayload        string `json:"qrPayload"`
	ArtifactURL      string `json:"artifactUrl,omitempty"`
}

// DocumentView is what issuers see; it never includes applicant digests.
type DocumentView struct {
	DocumentID       string     `json:"documentId"`
	DocumentType     string     `json:"documentType"`
	IssuedAt         time.Time  `json:"issuedAt"`
	IssuerOffice     string     `json:"issuerOffice"`
	Status           Status     `json:"status"`
	VerificationCode string     `json:"verificationCode"`
	QRPayload        string     `json:"qrPayload"`
	KeyID            string     `json:"keyId"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	Supersedes       string     `json:"supersedes,omitempty"`
}

func NewDocumentView(d *DocumentRecord) DocumentView {
	return DocumentView{
		DocumentID:       d.ID.String(),
		DocumentType:     d.DocumentType.String(),
		IssuedAt:         d.IssuedAt,
		IssuerOffice:     d.IssuerOffice,
		Status:           d.Status,
		VerificationCode: d.VerificationCode,
		QRPayload:        d.QRPayload,
		KeyID:            d.KeyID,
		RevokedAt:        d.RevokedAt,
		Supersedes:       d.Supersedes,
	}
}
