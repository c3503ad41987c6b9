package service

import (
	"time"

	"docverify/internal/document/canonical"
)

// decoy mirrors the canonicalize and verify work of a real lookup so that an
// unknown code costs about as much as a tampered one.
type decoy struct {
	content   canonical.Content
	hash      string
	signature string
}

func newDecoy() decoy {
	c := canonical.Content{
		Version:          canonical.CurrentVersion,
		DocumentID:       "00000000-0000-4000-8000-000000000000",
		DocumentType:     "decoy",
		IssuedAt:         time.Unix(0, 0).UTC(),
		IssuerOffice:     "decoy",
		VerificationCode: "00000-00000-0",
		ApplicantDigest:  map[string]string{"decoy": "0000000000000000000000000000000000000000000000000000000000000000"},
	}
	d := decoy{content: c}
	if b, err := canonical.Canonicalize(c); err == nil {
		d.hash = canonical.Hash(b)
	}
	// Any well-formed but wrong signature forces the full verify path.
	d.signature = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	return d
}

func (d decoy) run(v SignatureVerifier) {
	content, err := canonical.Canonicalize(d.content)
	if err != nil {
		return
	}
	_ = v.VerifyContent(content, d.hash, d.signature, v.ActiveKeyID())
}
