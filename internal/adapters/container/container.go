// Package container wraps the Docker Engine API for the api_crash and
// env_var faults, which restart or stop the target's container as part of
// their inject/rollback sequence.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/chaoslab/faultplane/internal/apierrors"
	"github.com/chaoslab/faultplane/internal/resilience"
)

// Status summarizes a container's running state for the registry's
// Observe probes.
type Status struct {
	Running  bool
	Health   string
	ExitCode int
}

// Manager drives container lifecycle operations through the Docker
// Engine API, grounded on the retrieved chaos-utils injector's
// container.Manager shape (restart/kill/pause via a shared docker client),
// narrowed here to this spec's stop/start/restart/status contract.
type Manager struct {
	cli     *client.Client
	logger  *slog.Logger
	timeout time.Duration
}

// New wraps an already-constructed Docker client. Callers typically build
// cli with client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation()).
func New(cli *client.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cli: cli, logger: logger, timeout: 30 * time.Second}
}

// Stop stops the named container, giving it gracePeriod to exit before
// Docker sends SIGKILL.
func (m *Manager) Stop(ctx context.Context, name string, gracePeriod time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	secs := int(gracePeriod.Seconds())
	if err := m.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &secs}); err != nil {
		return apierrors.AdapterErrorf("stop container %s", name).WithDetail(err.Error())
	}
	m.logger.Info("container stopped", "container", name)
	return nil
}

// Start starts the named container.
func (m *Manager) Start(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return apierrors.AdapterErrorf("start container %s", name).WithDetail(err.Error())
	}
	m.logger.Info("container started", "container", name)
	return nil
}

// Restart stops then starts the named container, as a single Docker Engine
// API call.
func (m *Manager) Restart(ctx context.Context, name string, gracePeriod time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	secs := int(gracePeriod.Seconds())
	if err := m.cli.ContainerRestart(ctx, name, container.StopOptions{Timeout: &secs}); err != nil {
		return apierrors.AdapterErrorf("restart container %s", name).WithDetail(err.Error())
	}
	m.logger.Info("container restarted", "container", name)
	return nil
}

// Status inspects the named container's current running state. The
// inspect call is retried against transient Docker daemon hiccups (a
// socket reset while the daemon itself restarts) since it's a read and
// safe to repeat, unlike Stop/Start/Restart.
func (m *Manager) Status(ctx context.Context, name string) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	retryPolicy := resilience.DefaultPolicy()
	retryPolicy.MaxRetries = 2
	retryPolicy.ErrorChecker = resilience.NetworkErrorChecker{}
	retryPolicy.Logger = m.logger

	info, err := resilience.WithRetryFunc(ctx, retryPolicy, func() (container.InspectResponse, error) {
		return m.cli.ContainerInspect(ctx, name)
	})
	if err != nil {
		return Status{}, apierrors.AdapterErrorf("inspect container %s", name).WithDetail(err.Error())
	}
	if info.State == nil {
		return Status{}, fmt.Errorf("container %s: no state reported", name)
	}
	status := Status{
		Running:  info.State.Running,
		ExitCode: info.State.ExitCode,
	}
	if info.State.Health != nil {
		status.Health = info.State.Health.Status
	}
	return status, nil
}
