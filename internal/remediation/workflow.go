package remediation

import "context"

// Run is the remediation analogue of a chaos attack's record (spec.md
// §3): an ordered execution log plus a terminal verdict and a short
// human-readable recommendation.
type Run struct {
	ExecutionLog        []StepResult `json:"execution_log"`
	RemediationComplete bool         `json:"remediation_complete"`
	Recommendation      string       `json:"recommendation"`
}

// RemediateDBPoolExhaustion runs spec.md §4.4's ordered plan: restart the
// target API, verify health, optionally escalate to a DB restart, verify
// again. Stopping the originating chaos attack (step 1 of spec.md's plan)
// is the caller's responsibility — this engine never talks to the chaos
// service itself.
func (e *Engine) RemediateDBPoolExhaustion(ctx context.Context, escalateToDBRestart bool) Run {
	var log []StepResult
	step := 1

	restartAPI := e.restartContainer(ctx, step, actionRestartAPI, e.APIContainer)
	log = append(log, restartAPI)
	step++

	verify := e.verifyHealth(ctx, step)
	log = append(log, verify)
	step++

	if isHealthy(verify) {
		return Run{
			ExecutionLog:        log,
			RemediationComplete: true,
			Recommendation:      "target API restart resolved the db pool exhaustion",
		}
	}

	if !escalateToDBRestart {
		return Run{
			ExecutionLog:        log,
			RemediationComplete: false,
			Recommendation:      "target remains unhealthy after API restart; re-run with escalate_to_db_restart to try a DB restart",
		}
	}

	restartDB := e.restartContainer(ctx, step, actionRestartDB, e.DBContainer)
	log = append(log, restartDB)
	step++

	final := e.verifyHealth(ctx, step)
	log = append(log, final)

	if isHealthy(final) {
		return Run{
			ExecutionLog:        log,
			RemediationComplete: true,
			Recommendation:      "DB restart resolved the db pool exhaustion after the API restart alone did not",
		}
	}

	return Run{
		ExecutionLog:        log,
		RemediationComplete: false,
		Recommendation:      "target remains unhealthy after API and DB restarts; escalate to a human operator",
	}
}

func isHealthy(step StepResult) bool {
	return step.Status == "success" && step.Result["is_healthy"] == "true"
}
