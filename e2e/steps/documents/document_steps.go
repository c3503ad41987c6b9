package documents

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	UseIssuerToken() error
	ClearToken()
	LastStatus() int
	LastBody() []byte
	ResponseField(field string) (string, error)
	Remember(key, value string)
	Recall(key string) (string, error)
}

// RegisterSteps registers issuer API step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &documentSteps{tc: tc}

	ctx.Step(`^I issue a birth certificate for "([^"]*)"$`, steps.issueBirthCertificate)
	ctx.Step(`^a birth certificate has been issued for "([^"]*)"$`, steps.birthCertificateIssued)
	ctx.Step(`^I revoke the document with reason "([^"]*)"$`, steps.revokeDocument)
	ctx.Step(`^the document has been revoked$`, steps.documentRevoked)
}

type documentSteps struct {
	tc TestContext
}

func (s *documentSteps) issueBirthCertificate(ctx context.Context, fullName string) error {
	body := map[string]any{
		"documentType": "birth_certificate",
		"applicantData": map[string]string{
			"full_name":      fullName,
			"date_of_birth":  "1994-11-23",
			"place_of_birth": "Gqeberha",
			"sex":            "F",
		},
		"issuerContext": map[string]string{"issuerOffice": "Gqeberha Regional Office"},
	}
	if err := s.tc.POST("/documents", body); err != nil {
		return err
	}
	if s.tc.LastStatus() != 201 {
		return nil
	}
	for _, field := range []string{"documentId", "verificationCode", "qrPayload"} {
		v, err := s.tc.ResponseField(field)
		if err != nil {
			return err
		}
		s.tc.Remember(field, v)
	}
	return nil
}

// birthCertificateIssued issues as the issuer and then drops the token, so
// the following steps run as an anonymous verifier.
func (s *documentSteps) birthCertificateIssued(ctx context.Context, fullName string) error {
	if err := s.tc.UseIssuerToken(); err != nil {
		return err
	}
	defer s.tc.ClearToken()
	if err := s.issueBirthCertificate(ctx, fullName); err != nil {
		return err
	}
	if s.tc.LastStatus() != 201 {
		return fmt.Errorf("issuance failed with %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	return nil
}

func (s *documentSteps) revokeDocument(ctx context.Context, reason string) error {
	id, err := s.tc.Recall("documentId")
	if err != nil {
		return err
	}
	return s.tc.POST("/documents/"+url.PathEscape(id)+"/revoke", map[string]string{"reason": reason})
}

func (s *documentSteps) documentRevoked(ctx context.Context) error {
	if err := s.tc.UseIssuerToken(); err != nil {
		return err
	}
	defer s.tc.ClearToken()
	if err := s.revokeDocument(ctx, "reported lost"); err != nil {
		return err
	}
	if s.tc.LastStatus() != 200 {
		return fmt.Errorf("revocation failed with %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	return nil
}
