// Package remediation implements the Remediation Workflow Engine (spec.md
// §4.4): atomic actions against the target's container and API, and the
// composed db-pool-exhaustion recovery workflow.
package remediation

import (
	"context"
	"time"

	"github.com/chaoslab/faultplane/internal/adapters/container"
	"github.com/chaoslab/faultplane/internal/adapters/httpadapter"
)

const (
	actionRestartAPI  = "restart_target_api"
	actionRestartDB   = "restart_target_db"
	actionVerifyHealth = "verify_health"

	defaultActionsPerMinute = 5
	containerGracePeriod    = 10 * time.Second
)

// StepResult is one entry in a remediation run's execution log, matching
// spec.md §3's `{step, action, status, result, error}` shape.
type StepResult struct {
	Step   int               `json:"step"`
	Action string            `json:"action"`
	Status string            `json:"status"` // "success" | "failed" | "skipped"
	Result map[string]string `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Engine exposes the atomic actions and the composed workflow over the
// target's adapters, each atomic action pre-flighted by a per-action
// governor.
type Engine struct {
	Containers    *container.Manager
	HTTP          *httpadapter.Client
	APIContainer  string
	DBContainer   string
	HealthURL     string
	gov           *governor
}

// NewEngine builds an Engine allowing at most defaultActionsPerMinute
// executions of any single atomic action per rolling minute.
func NewEngine(containers *container.Manager, http *httpadapter.Client, apiContainer, dbContainer, healthURL string) *Engine {
	return &Engine{
		Containers:   containers,
		HTTP:         http,
		APIContainer: apiContainer,
		DBContainer:  dbContainer,
		HealthURL:    healthURL,
		gov:          newGovernor(defaultActionsPerMinute),
	}
}

// RestartTargetAPI restarts the target API container.
func (e *Engine) RestartTargetAPI(ctx context.Context) StepResult {
	return e.restartContainer(ctx, 1, actionRestartAPI, e.APIContainer)
}

// RestartTargetDB restarts the target database container.
func (e *Engine) RestartTargetDB(ctx context.Context) StepResult {
	return e.restartContainer(ctx, 1, actionRestartDB, e.DBContainer)
}

func (e *Engine) restartContainer(ctx context.Context, step int, action, containerName string) StepResult {
	if !e.gov.allow(action) {
		return StepResult{Step: step, Action: action, Status: "failed", Error: "rate limit exceeded for this action"}
	}
	if err := e.Containers.Restart(ctx, containerName, containerGracePeriod); err != nil {
		return StepResult{Step: step, Action: action, Status: "failed", Error: err.Error()}
	}
	return StepResult{
		Step:   step,
		Action: action,
		Status: "success",
		Result: map[string]string{"container": containerName},
	}
}

// VerifyHealth probes HealthURL and reports whether the target answered
// with a 2xx status.
func (e *Engine) VerifyHealth(ctx context.Context) StepResult {
	return e.verifyHealth(ctx, 1)
}

func (e *Engine) verifyHealth(ctx context.Context, step int) StepResult {
	if !e.gov.allow(actionVerifyHealth) {
		return StepResult{Step: step, Action: actionVerifyHealth, Status: "failed", Error: "rate limit exceeded for this action"}
	}

	status, _, err := e.HTTP.Get(ctx, e.HealthURL)
	healthy := err == nil && status >= 200 && status < 300

	result := StepResult{
		Step:   step,
		Action: actionVerifyHealth,
		Result: map[string]string{"is_healthy": boolString(healthy)},
	}
	if err != nil {
		result.Status = "failed"
		result.Error = err.Error()
		return result
	}
	result.Status = "success"
	return result
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
