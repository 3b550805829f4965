package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaoslab/faultplane/internal/adapters/dbadapter"
	"github.com/chaoslab/faultplane/internal/adapters/httpadapter"
	"github.com/chaoslab/faultplane/internal/bootstrap"
	"github.com/chaoslab/faultplane/internal/faults/apicrash"
	"github.com/chaoslab/faultplane/internal/faults/dbpool"
	"github.com/chaoslab/faultplane/internal/faults/envvar"
	"github.com/chaoslab/faultplane/internal/faults/longtransaction"
	"github.com/chaoslab/faultplane/internal/faults/migration"
	"github.com/chaoslab/faultplane/internal/faults/ratelimit"
	"github.com/chaoslab/faultplane/internal/registry"
	"github.com/chaoslab/faultplane/internal/safety"
	"github.com/chaoslab/faultplane/internal/transport"
	"github.com/chaoslab/faultplane/pkg/metrics"
)

var migrationsDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chaosd HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&migrationsDir, "migrations-dir", "migrations", "directory of goose migrations applied when audit.sink is postgres")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stack, err := bootstrap.Build(ctx, configPath, migrationsDir)
	if err != nil {
		return fmt.Errorf("chaosd: %w", err)
	}
	defer stack.Close()

	gate := safety.NewGate(*stack.Config, stack.Logger)
	modules := buildModules(stack)
	engine := registry.NewEngine(modules, gate, stack.Logger)
	reg := metrics.DefaultRegistry()

	server := &transport.ChaosServer{
		Engine:  engine,
		Gate:    gate,
		Modules: modules,
		Audit:   stack.Audit,
		Metrics: reg.Chaos(),
		Logger:  stack.Logger,
		Config:  stack.Config,
	}

	httpServer := &http.Server{
		Addr:         stack.Config.Server.Addr(),
		Handler:      server.Router(stack.Config.Concurrency.ActionsPerMinute),
		ReadTimeout:  stack.Config.Server.ReadTimeout,
		WriteTimeout: stack.Config.Server.WriteTimeout,
	}

	return runWithGracefulShutdown(stack, httpServer)
}

// buildModules registers one Module per registry.Kind over the shared
// adapter stack. No config is passed to the modules: target-stack
// conventions such as the env file path and the migration version table
// come from each attack's request params (or a module's own built-in
// default), not from target_stack config.
func buildModules(stack *bootstrap.Stack) map[registry.Kind]registry.Module {
	var db *dbadapter.Pool = stack.DB
	var httpClient *httpadapter.Client = stack.HTTP

	return map[registry.Kind]registry.Module{
		registry.KindDBPool:          dbpool.Module{DB: db, HTTP: httpClient},
		registry.KindLongTransaction: longtransaction.Module{DB: db},
		registry.KindEnvVar:          envvar.Module{Containers: stack.Containers, HTTP: httpClient},
		registry.KindAPICrash:        apicrash.Module{Containers: stack.Containers, HTTP: httpClient},
		registry.KindRateLimit:       ratelimit.Module{HTTP: httpClient},
		registry.KindMigration:       migration.Module{DB: db},
	}
}

func runWithGracefulShutdown(stack *bootstrap.Stack, httpServer *http.Server) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		stack.Logger.Info("chaosd listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	stack.Logger.Info("chaosd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), stack.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("chaosd: graceful shutdown: %w", err)
	}
	stack.Logger.Info("chaosd stopped")
	return nil
}
