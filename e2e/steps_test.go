package e2e

import (
	"github.com/cucumber/godog"

	"hie-gateway/e2e/steps/common"
	"hie-gateway/e2e/steps/consent"
	"hie-gateway/e2e/steps/transfer"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, sc *scenarioContext) {
	common.RegisterSteps(ctx, sc)
	consent.RegisterSteps(ctx, sc)
	transfer.RegisterSteps(ctx, sc)
}
