package safety

import (
	"github.com/chaoslab/faultplane/internal/apierrors"
	"github.com/chaoslab/faultplane/internal/registry"
)

// DryRun validates rawParams against module without calling Inject,
// returning the module's planned side effects when it implements
// registry.Planner, or a minimal generic preview otherwise.
func (g *Gate) DryRun(module registry.Module, rawParams map[string]any) (registry.Plan, error) {
	typedParams, err := module.Validate(rawParams)
	if err != nil {
		return registry.Plan{}, apierrors.InvalidParamsf("%s", err.Error())
	}

	if planner, ok := module.(registry.Planner); ok {
		return planner.Plan(typedParams), nil
	}

	return registry.Plan{
		Description: "validated; module has no detailed plan preview",
		Risk:        "unknown",
	}, nil
}
