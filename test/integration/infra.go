//go:build integration
// +build integration

// Package integration holds the fault modules' Inject/Observe/Rollback
// coverage that needs a real Postgres target rather than the fakes used
// by the package-level unit tests.
package integration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/chaoslab/faultplane/internal/adapters/dbadapter"
)

// Infra wraps a disposable Postgres container and a connected Pool
// pointed at it.
type Infra struct {
	container *postgres.PostgresContainer
	DB        *dbadapter.Pool
	DSN       string
}

// SetupPostgres starts a Postgres container, applies every migration
// under migrationsDir via goose, and returns a connected Pool.
func SetupPostgres(ctx context.Context, migrationsDir string) (*Infra, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("faultplane_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	if err := applyMigrations(ctx, dsn, migrationsDir); err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	db := dbadapter.New(dbadapter.DefaultConfig(dsn), slog.Default())
	if err := db.Connect(ctx); err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("connect pool: %w", err)
	}

	return &Infra{container: container, DB: db, DSN: dsn}, nil
}

// Teardown closes the Pool and terminates the container.
func (i *Infra) Teardown(ctx context.Context) {
	if i.DB != nil {
		i.DB.Close()
	}
	if i.container != nil {
		_ = i.container.Terminate(ctx)
	}
}

// applyMigrations runs every goose migration under migrationsDir against
// dsn, the same dialect/driver path internal/audit.NewPostgresSink uses.
func applyMigrations(ctx context.Context, dsn, migrationsDir string) error {
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("invalid postgres DSN: %w", err)
	}
	db := stdlib.OpenDB(*connConfig)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.Up(db, migrationsDir)
}
