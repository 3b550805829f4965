// Package apicrash implements the API Crash fault (spec.md §4.2.d): stop
// or restart the target container and verify the expected reachability
// change.
package apicrash

import (
	"context"
	"fmt"
	"time"

	"github.com/chaoslab/faultplane/internal/adapters/container"
	"github.com/chaoslab/faultplane/internal/adapters/httpadapter"
	"github.com/chaoslab/faultplane/internal/apierrors"
	"github.com/chaoslab/faultplane/internal/faults/faultutil"
	"github.com/chaoslab/faultplane/internal/registry"
)

// Action selects whether the container is stopped (and left stopped until
// rollback) or restarted (a one-shot bounce).
type Action string

const (
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

const probeWindow = 5 * time.Second

// Params are the validated inputs for an api_crash attack.
type Params struct {
	Action          Action `mapstructure:"action" validate:"required,oneof=stop restart"`
	ContainerName   string `mapstructure:"container_name" validate:"required"`
	TargetEndpoint  string `mapstructure:"target_endpoint"`
	DurationSeconds int    `mapstructure:"duration_seconds" validate:"omitempty,min=1,max=3600"`
}

// Duration implements registry.Durationed. A "restart" attack has nothing
// left to hold open once the container is back up, so it never carries a
// bound. A "stop" attack may be bounded or left running until an explicit
// stop.
func (p Params) Duration() time.Duration {
	if p.Action == ActionRestart || p.DurationSeconds == 0 {
		return 0
	}
	return time.Duration(p.DurationSeconds) * time.Second
}

// ResourceKey implements registry.ResourceKeyed.
func (p Params) ResourceKey() string { return "container:" + p.ContainerName }

// owned tracks whether the container is still stopped by this attack.
type owned struct {
	containerName string
	stopped       bool
}

func (o *owned) Empty() bool { return o == nil || !o.stopped }

// Module implements registry.Module for api_crash.
type Module struct {
	Containers *container.Manager
	HTTP       *httpadapter.Client
}

// Kind implements registry.Module.
func (Module) Kind() registry.Kind { return registry.KindAPICrash }

// Validate implements registry.Module.
func (Module) Validate(rawParams map[string]any) (any, error) {
	var p Params
	if err := faultutil.Decode(rawParams, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Inject stops or restarts the container and, for restart, blocks until
// Docker reports the container has come back running.
func (m Module) Inject(ctx context.Context, params any) (registry.OwnedResources, registry.Result, error) {
	p := params.(Params)

	switch p.Action {
	case ActionRestart:
		if err := m.Containers.Restart(ctx, p.ContainerName, 10*time.Second); err != nil {
			return nil, registry.Result{}, err
		}
		return nil, m.probeResult(ctx, p), nil

	case ActionStop:
		if err := m.Containers.Stop(ctx, p.ContainerName, 10*time.Second); err != nil {
			return nil, registry.Result{}, err
		}
		result := m.probeResult(ctx, p)
		return &owned{containerName: p.ContainerName, stopped: true}, result, nil

	default:
		return nil, registry.Result{}, apierrors.InvalidParamsf("unknown action %q", p.Action)
	}
}

// probeResult, when TargetEndpoint is set, verifies the expected
// reachability change within a bounded window.
func (m Module) probeResult(ctx context.Context, p Params) registry.Result {
	if p.TargetEndpoint == "" {
		return registry.Result{}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeWindow)
	defer cancel()

	status, _, err := m.HTTP.Get(probeCtx, p.TargetEndpoint)
	detail := map[string]string{"action": string(p.Action)}
	if err != nil {
		detail["probe_error"] = err.Error()
	} else {
		detail["probe_status"] = fmt.Sprintf("%d", status)
	}
	return registry.Result{Detail: detail}
}

// Observe reports the container's current status from Docker.
func (m Module) Observe(ctx context.Context, resources registry.OwnedResources) (registry.Result, error) {
	o, ok := resources.(*owned)
	if !ok || o.Empty() {
		return registry.Result{}, nil
	}
	status, err := m.Containers.Status(ctx, o.containerName)
	if err != nil {
		return registry.Result{ObserveError: err.Error()}, nil
	}
	return registry.Result{
		Detail: map[string]string{
			"running": fmt.Sprintf("%t", status.Running),
			"health":  status.Health,
		},
	}, nil
}

// Rollback starts the stopped container back up. It does not probe the
// target endpoint afterwards, so a container that starts but is not yet
// reachable still counts as rolled back. Idempotent.
func (m Module) Rollback(ctx context.Context, resources registry.OwnedResources, force bool) error {
	o, ok := resources.(*owned)
	if !ok || o.Empty() {
		return nil
	}
	if err := m.Containers.Start(ctx, o.containerName); err != nil {
		return err
	}
	o.stopped = false
	return nil
}

// Plan implements registry.Planner for the safety gate's dry-run preview.
func (Module) Plan(params any) registry.Plan {
	p := params.(Params)
	risk := "high"
	if p.Action == ActionRestart {
		risk = "medium"
	}
	return registry.Plan{
		Description: fmt.Sprintf("%s container %s", p.Action, p.ContainerName),
		Risk:        risk,
		Detail: map[string]string{
			"action":         string(p.Action),
			"container_name": p.ContainerName,
		},
	}
}
