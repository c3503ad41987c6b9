package common

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	SetClientIP(ip string)
	UseIssuerToken() error
	UseAuditorToken() error
	ClearToken()
	LastStatus() int
	LastBody() []byte
	LastHeader(name string) string
	ResponseField(field string) (string, error)
}

// RegisterSteps registers background, caller identity and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the service is healthy$`, steps.serviceIsHealthy)

	// Caller identity
	ctx.Step(`^I am a verifier at a fresh private address$`, steps.freshPrivateAddress)
	ctx.Step(`^I am a verifier at address "([^"]*)"$`, steps.verifierAtAddress)
	ctx.Step(`^I am an authenticated issuer$`, steps.authenticatedIssuer)
	ctx.Step(`^I am an authenticated auditor$`, steps.authenticatedAuditor)
	ctx.Step(`^I am not authenticated$`, steps.notAuthenticated)

	// Assertions
	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.responseFieldShouldBe)
	ctx.Step(`^the response should not contain "([^"]*)"$`, steps.responseShouldNotContain)
	ctx.Step(`^the response header "([^"]*)" should be present$`, steps.responseHeaderPresent)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serviceIsHealthy(ctx context.Context) error {
	if err := s.tc.GET("/health/ready"); err != nil {
		return err
	}
	return s.responseStatusShouldBe(ctx, 200)
}

// freshPrivateAddress picks a random 10.0.0.0/8 address so repeated runs do
// not share rate-limit counters. Private addresses resolve to the
// development country.
func (s *commonSteps) freshPrivateAddress(ctx context.Context) error {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<24))
	if err != nil {
		return err
	}
	v := n.Int64()
	s.tc.SetClientIP(fmt.Sprintf("10.%d.%d.%d", v>>16&0xff, v>>8&0xff, v&0xff))
	return nil
}

func (s *commonSteps) verifierAtAddress(ctx context.Context, ip string) error {
	s.tc.SetClientIP(ip)
	return nil
}

func (s *commonSteps) authenticatedIssuer(ctx context.Context) error {
	return s.tc.UseIssuerToken()
}

func (s *commonSteps) authenticatedAuditor(ctx context.Context) error {
	return s.tc.UseAuditorToken()
}

func (s *commonSteps) notAuthenticated(ctx context.Context) error {
	s.tc.ClearToken()
	return nil
}

func (s *commonSteps) responseStatusShouldBe(ctx context.Context, want int) error {
	if got := s.tc.LastStatus(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.LastBody())
	}
	return nil
}

func (s *commonSteps) responseFieldShouldBe(ctx context.Context, field, want string) error {
	got, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *commonSteps) responseShouldNotContain(ctx context.Context, text string) error {
	if strings.Contains(string(s.tc.LastBody()), text) {
		return fmt.Errorf("response unexpectedly contains %q: %s", text, s.tc.LastBody())
	}
	return nil
}

func (s *commonSteps) responseHeaderPresent(ctx context.Context, name string) error {
	if s.tc.LastHeader(name) == "" {
		return fmt.Errorf("response has no %s header", name)
	}
	return nil
}
