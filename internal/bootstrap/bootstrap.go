// Package bootstrap wires config, logging, adapters, and the audit sink
// shared by cmd/chaosd and cmd/actiond, so each main package stays a thin
// cobra command layer over the same construction logic.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/client"

	"github.com/chaoslab/faultplane/internal/adapters/container"
	"github.com/chaoslab/faultplane/internal/adapters/dbadapter"
	"github.com/chaoslab/faultplane/internal/adapters/httpadapter"
	"github.com/chaoslab/faultplane/internal/audit"
	"github.com/chaoslab/faultplane/internal/config"
	"github.com/chaoslab/faultplane/internal/logger"
)

// httpClientTimeout bounds every adapter call chaosd/actiond make against
// the target stack (probes, limit-config reads, health checks).
const httpClientTimeout = 10 * time.Second

// Stack holds every shared dependency built from Config, ready for the
// caller to assemble into a registry.Engine / remediation.Engine and an
// internal/transport server.
type Stack struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *dbadapter.Pool
	Containers *container.Manager
	HTTP       *httpadapter.Client
	Audit      audit.Sink
}

// Build loads configuration from configPath, opens the target database
// pool (best-effort: a chaosd or actiond instance whose target has no
// database configured still starts, with DB left nil), a Docker client,
// and an HTTP client, and selects the audit sink per cfg.Audit.Sink.
func Build(ctx context.Context, configPath, migrationsDir string) (*Stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	log.Info("configuration loaded", "config", cfg.Sanitized())

	stack := &Stack{Config: cfg, Logger: log, HTTP: httpadapter.New(httpClientTimeout)}

	if cfg.TargetStack.DatabaseURL != "" {
		db := dbadapter.New(dbadapter.DefaultConfig(cfg.TargetStack.DatabaseURL), log)
		if err := db.Connect(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: connect target database: %w", err)
		}
		stack.DB = db
	}

	dockerCli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create docker client: %w", err)
	}
	stack.Containers = container.New(dockerCli, log)

	sink, err := buildAuditSink(ctx, cfg, migrationsDir, log)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build audit sink: %w", err)
	}
	stack.Audit = sink

	return stack, nil
}

func buildAuditSink(ctx context.Context, cfg *config.Config, migrationsDir string, log *slog.Logger) (audit.Sink, error) {
	switch cfg.Audit.Sink {
	case "postgres":
		return audit.NewPostgresSink(ctx, cfg.TargetStack.DatabaseURL, migrationsDir, log)
	default:
		return audit.NewLogSink(log), nil
	}
}

// Close releases every adapter the Stack opened. Safe to call on a
// partially built Stack.
func (s *Stack) Close() {
	if s == nil {
		return
	}
	if s.DB != nil {
		s.DB.Close()
	}
	if closer, ok := s.Audit.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
