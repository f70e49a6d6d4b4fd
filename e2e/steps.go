package e2e

import (
	"github.com/cucumber/godog"

	"bayanat/e2e/steps/common"
	"bayanat/e2e/steps/entity"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	entity.RegisterSteps(ctx, tc)
}
