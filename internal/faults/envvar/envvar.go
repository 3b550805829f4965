// Package envvar implements the Environment Variable Corruption fault
// (spec.md §4.2.c): remove or replace one variable in the target's env
// file and restart its container so the change takes effect.
package envvar

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chaoslab/faultplane/internal/adapters/container"
	"github.com/chaoslab/faultplane/internal/adapters/fileadapter"
	"github.com/chaoslab/faultplane/internal/adapters/httpadapter"
	"github.com/chaoslab/faultplane/internal/faults/faultutil"
	"github.com/chaoslab/faultplane/internal/registry"
)

// FailureType selects how the target variable is corrupted.
type FailureType string

const (
	FailureMissing FailureType = "missing"
	FailureWrong   FailureType = "wrong"
)

const wrongValueSentinel = "__FAULTPLANE_CORRUPTED__"

// Params are the validated inputs for an env_var attack.
type Params struct {
	EnvVarName      string      `mapstructure:"env_var_name" validate:"required"`
	FailureType     FailureType `mapstructure:"failure_type" validate:"required,oneof=missing wrong"`
	EnvFilePath     string      `mapstructure:"env_file_path" validate:"required"`
	ContainerName   string      `mapstructure:"container_name" validate:"required"`
	ProbeEndpoint   string      `mapstructure:"probe_endpoint"`
	DurationSeconds int         `mapstructure:"duration_seconds" validate:"omitempty,min=1,max=3600"`
}

// Duration implements registry.Durationed when the operator supplied a
// bound; zero leaves the attack running until an explicit stop.
func (p Params) Duration() time.Duration {
	if p.DurationSeconds == 0 {
		return 0
	}
	return time.Duration(p.DurationSeconds) * time.Second
}

// ResourceKey implements registry.ResourceKeyed: only one attack may edit
// a given env file at a time.
func (p Params) ResourceKey() string { return "envfile:" + p.EnvFilePath }

// owned records what Rollback needs to restore the target.
type owned struct {
	backupTag     string
	path          string
	containerName string
	restored      bool
}

func (o *owned) Empty() bool { return o == nil || o.restored }

// Module implements registry.Module for env_var.
type Module struct {
	Containers *container.Manager
	HTTP       *httpadapter.Client
}

// Kind implements registry.Module.
func (Module) Kind() registry.Kind { return registry.KindEnvVar }

// Validate implements registry.Module.
func (Module) Validate(rawParams map[string]any) (any, error) {
	var p Params
	if err := faultutil.Decode(rawParams, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Inject backs up the env file, rewrites it with env_var_name removed or
// replaced, restarts the container, and optionally probes for the
// expected failure.
func (m Module) Inject(ctx context.Context, params any) (registry.OwnedResources, registry.Result, error) {
	p := params.(Params)
	backupTag := uuid.New().String()

	if _, err := fileadapter.BackupToSibling(p.EnvFilePath, backupTag); err != nil {
		return nil, registry.Result{}, fmt.Errorf("back up env file: %w", err)
	}

	data, err := fileadapter.Read(p.EnvFilePath)
	if err != nil {
		return nil, registry.Result{}, err
	}

	rewritten, hadVar := corrupt(data, p.EnvVarName, p.FailureType)
	if err := fileadapter.AtomicWrite(p.EnvFilePath, rewritten, 0o644); err != nil {
		return nil, registry.Result{}, fmt.Errorf("write corrupted env file: %w", err)
	}

	if err := m.Containers.Restart(ctx, p.ContainerName, 10*time.Second); err != nil {
		return nil, registry.Result{}, fmt.Errorf("restart target container: %w", err)
	}

	result := registry.Result{
		Detail: map[string]string{
			"env_var_name": p.EnvVarName,
			"failure_type": string(p.FailureType),
			"had_var":      fmt.Sprintf("%t", hadVar),
		},
	}

	if p.ProbeEndpoint != "" {
		status, _, probeErr := m.HTTP.Get(ctx, p.ProbeEndpoint)
		if probeErr != nil {
			result.Detail["probe_error"] = probeErr.Error()
		} else {
			result.Detail["probe_status"] = fmt.Sprintf("%d", status)
		}
	}

	return &owned{backupTag: backupTag, path: p.EnvFilePath, containerName: p.ContainerName}, result, nil
}

// Observe is a no-op: the corrupted env var stays in effect until
// Rollback, nothing to poll in between.
func (Module) Observe(ctx context.Context, resources registry.OwnedResources) (registry.Result, error) {
	return registry.Result{}, nil
}

// Rollback restores the env file from its backup sibling and restarts the
// container again so the original value takes effect.
func (m Module) Rollback(ctx context.Context, resources registry.OwnedResources, force bool) error {
	o, ok := resources.(*owned)
	if !ok || o.Empty() {
		return nil
	}

	if err := fileadapter.RestoreFromSibling(o.path, o.backupTag); err != nil {
		return err
	}
	if err := m.Containers.Restart(ctx, o.containerName, 10*time.Second); err != nil {
		return err
	}
	o.restored = true
	return nil
}

// Plan implements registry.Planner for the safety gate's dry-run preview.
func (Module) Plan(params any) registry.Plan {
	p := params.(Params)
	return registry.Plan{
		Description: fmt.Sprintf("back up %s, set %s to %s, restart %s", p.EnvFilePath, p.EnvVarName, p.FailureType, p.ContainerName),
		Risk:        "medium",
		Detail: map[string]string{
			"env_var_name":  p.EnvVarName,
			"container_name": p.ContainerName,
		},
	}
}

// corrupt rewrites an env file's lines, removing name entirely for
// "missing" or replacing its value with a sentinel for "wrong". Reports
// whether name was present.
func corrupt(data []byte, name string, failureType FailureType) ([]byte, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var out bytes.Buffer
	found := false

	prefix := name + "="
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) >= len(prefix) && line[:len(prefix)] == prefix {
			found = true
			if failureType == FailureWrong {
				out.WriteString(prefix + wrongValueSentinel + "\n")
			}
			continue
		}
		out.WriteString(line + "\n")
	}

	if !found && failureType == FailureWrong {
		out.WriteString(prefix + wrongValueSentinel + "\n")
	}

	return out.Bytes(), found
}
