package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaoslab/faultplane/internal/bootstrap"
	"github.com/chaoslab/faultplane/internal/remediation"
	"github.com/chaoslab/faultplane/internal/safety"
	"github.com/chaoslab/faultplane/internal/transport"
	"github.com/chaoslab/faultplane/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the actiond HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// actiond shares the audit sink plumbing with chaosd: when audit.sink
	// is "postgres", Build applies the goose migrations found under
	// "migrations" relative to the working directory. Load defaults
	// audit.sink to "stdout", which runs no migrations.
	stack, err := bootstrap.Build(ctx, configPath, "migrations")
	if err != nil {
		return fmt.Errorf("actiond: %w", err)
	}
	defer stack.Close()

	gate := safety.NewGate(*stack.Config, stack.Logger)
	engine := remediation.NewEngine(
		stack.Containers,
		stack.HTTP,
		stack.Config.TargetStack.APIContainer,
		stack.Config.TargetStack.DBContainer,
		stack.Config.TargetStack.APIBaseURL+"/healthz",
	)
	reg := metrics.DefaultRegistry()

	server := &transport.ActionServer{
		Remediation: engine,
		Gate:        gate,
		DB:          stack.DB,
		Metrics:     reg.Remediation(),
		Logger:      stack.Logger,
		Config:      stack.Config,
	}

	httpServer := &http.Server{
		Addr:         stack.Config.Server.Addr(),
		Handler:      server.Router(stack.Config.Concurrency.ActionsPerMinute),
		ReadTimeout:  stack.Config.Server.ReadTimeout,
		WriteTimeout: stack.Config.Server.WriteTimeout,
	}

	return runWithGracefulShutdown(stack, httpServer)
}

func runWithGracefulShutdown(stack *bootstrap.Stack, httpServer *http.Server) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		stack.Logger.Info("actiond listening", "addr", httpServer.Addr)
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

	stack.Logger.Info("actiond shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), stack.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("actiond: graceful shutdown: %w", err)
	}
	stack.Logger.Info("actiond stopped")
	return nil
}
