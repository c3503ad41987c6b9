package ratelimit

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	LastStatus() int
	LastBody() []byte
	LastHeader(name string) string
	Recall(key string) (string, error)
}

// RegisterSteps registers per-address verification limit steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I verify the document (\d+) times$`, steps.verifyNTimes)
	ctx.Step(`^I keep verifying the document until I am rate limited$`, steps.verifyUntilLimited)
	ctx.Step(`^the response should tell me when to retry$`, steps.shouldTellRetry)
}

// maxAttempts bounds verifyUntilLimited well above any sane RATE_LIMIT_MAX.
const maxAttempts = 500

type ratelimitSteps struct {
	tc TestContext
}

func (s *ratelimitSteps) path() (string, error) {
	code, err := s.tc.Recall("verificationCode")
	if err != nil {
		return "", err
	}
	return "/verify/" + url.PathEscape(code), nil
}

func (s *ratelimitSteps) verifyNTimes(ctx context.Context, n int) error {
	path, err := s.path()
	if err != nil {
		return err
	}
	for i := 1; i <= n; i++ {
		if err := s.tc.GET(path); err != nil {
			return err
		}
		if s.tc.LastStatus() != 200 {
			return fmt.Errorf("attempt %d returned %d: %s", i, s.tc.LastStatus(), s.tc.LastBody())
		}
	}
	return nil
}

func (s *ratelimitSteps) verifyUntilLimited(ctx context.Context) error {
	path, err := s.path()
	if err != nil {
		return err
	}
	for i := 1; i <= maxAttempts; i++ {
		if err := s.tc.GET(path); err != nil {
			return err
		}
		switch s.tc.LastStatus() {
		case 200:
			continue
		case 429:
			return nil
		default:
			return fmt.Errorf("attempt %d returned %d: %s", i, s.tc.LastStatus(), s.tc.LastBody())
		}
	}
	return fmt.Errorf("not rate limited after %d attempts", maxAttempts)
}

func (s *ratelimitSteps) shouldTellRetry(ctx context.Context) error {
	if s.tc.LastHeader("Retry-After") == "" {
		return fmt.Errorf("429 response without Retry-After")
	}
	return nil
}
