package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	UseAuditorToken() error
	ClearToken()
	LastStatus() int
	LastBody() []byte
	ResponseField(field string) (string, error)
	Recall(key string) (string, error)
}

// RegisterSteps registers public verification and audit history steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc}

	ctx.Step(`^I verify the document by its code$`, steps.verifyByCode)
	ctx.Step(`^I verify the document by scanning its QR code$`, steps.verifyByQR)
	ctx.Step(`^I verify the code "([^"]*)"$`, steps.verifyCode)
	ctx.Step(`^the verification status should be "([^"]*)"$`, steps.statusShouldBe)
	ctx.Step(`^the verification history should include a "([^"]*)" result$`, steps.historyIncludes)
}

type verificationSteps struct {
	tc TestContext
}

func (s *verificationSteps) verifyByCode(ctx context.Context) error {
	code, err := s.tc.Recall("verificationCode")
	if err != nil {
		return err
	}
	return s.verifyCode(ctx, code)
}

func (s *verificationSteps) verifyByQR(ctx context.Context) error {
	payload, err := s.tc.Recall("qrPayload")
	if err != nil {
		return err
	}
	return s.tc.POST("/verify", map[string]string{"payload": payload})
}

func (s *verificationSteps) verifyCode(ctx context.Context, code string) error {
	return s.tc.GET("/verify/" + url.PathEscape(code))
}

func (s *verificationSteps) statusShouldBe(ctx context.Context, want string) error {
	if s.tc.LastStatus() != 200 {
		return fmt.Errorf("expected a 200 verification response, got %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	got, err := s.tc.ResponseField("status")
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected verification status %q, got %q", want, got)
	}
	return nil
}

func (s *verificationSteps) historyIncludes(ctx context.Context, result string) error {
	id, err := s.tc.Recall("documentId")
	if err != nil {
		return err
	}
	if err := s.tc.UseAuditorToken(); err != nil {
		return err
	}
	defer s.tc.ClearToken()
	if err := s.tc.GET("/verify/history/" + url.PathEscape(id)); err != nil {
		return err
	}
	if s.tc.LastStatus() != 200 {
		return fmt.Errorf("history request failed with %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	var resp struct {
		Events []struct {
			Result string `json:"result"`
		} `json:"events"`
	}
	if err := json.Unmarshal(s.tc.LastBody(), &resp); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	for _, e := range resp.Events {
		if e.Result == result {
			return nil
		}
	}
	return fmt.Errorf("no %q event in history: %s", result, s.tc.LastBody())
}
