package e2e

import (
	"github.com/cucumber/godog"

	"docverify/e2e/steps/common"
	"docverify/e2e/steps/documents"
	"docverify/e2e/steps/ratelimit"
	"docverify/e2e/steps/verification"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Background, generic requests and assertions
	common.RegisterSteps(ctx, tc)

	// Issuer API
	documents.RegisterSteps(ctx, tc)

	// Public verification and history
	verification.RegisterSteps(ctx, tc)

	ratelimit.RegisterSteps(ctx, tc)
}
