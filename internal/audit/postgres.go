package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresSink persists every entry to the audit_log table (applying the
// migrations under migrationsDir on construction, following the
// teacher's filepath-relative migrations convention rather than an
// embedded filesystem) and always also forwards to an embedded LogSink,
// so audit history survives even if the database later becomes
// unreachable mid-run.
type PostgresSink struct {
	db       *sql.DB
	logger   *slog.Logger
	fallback *LogSink
}

// NewPostgresSink opens dsn via the pgx stdlib driver, runs pending goose
// migrations from migrationsDir (typically "migrations" relative to the
// process's working directory), and returns a ready Sink.
func NewPostgresSink(ctx context.Context, dsn, migrationsDir string, logger *slog.Logger) (*PostgresSink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: invalid postgres DSN: %w", err)
	}
	db := stdlib.OpenDB(*connConfig)

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("audit: set goose dialect: %w", err)
	}
	if err := goose.Up(db, migrationsDir); err != nil {
		return nil, fmt.Errorf("audit: run migrations: %w", err)
	}

	return &PostgresSink{db: db, logger: logger, fallback: NewLogSink(logger)}, nil
}

// Record implements Sink: always logs, then best-effort persists.
func (s *PostgresSink) Record(ctx context.Context, e Entry) {
	s.fallback.Record(ctx, e)

	detail, err := json.Marshal(e.Detail)
	if err != nil {
		detail = []byte("{}")
	}

	const q = `INSERT INTO audit_log (ts, actor, action, attack_id, kind, detail) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.ExecContext(ctx, q, e.Timestamp, e.Actor, e.Action, e.AttackID, e.Kind, detail); err != nil {
		s.logger.Error("audit: failed to persist entry", "error", err, "action", e.Action)
	}
}

// Query implements Sink: returns entries for attackID (or the most recent
// entries overall when attackID is empty), newest first.
func (s *PostgresSink) Query(ctx context.Context, attackID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if attackID == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT ts, actor, action, attack_id, kind, detail FROM audit_log ORDER BY ts DESC LIMIT $1`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT ts, actor, action, attack_id, kind, detail FROM audit_log WHERE attack_id = $1 ORDER BY ts DESC LIMIT $2`, attackID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("audit: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var detail []byte
		var ts time.Time
		if err := rows.Scan(&ts, &e.Actor, &e.Action, &e.AttackID, &e.Kind, &detail); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		e.Timestamp = ts
		_ = json.Unmarshal(detail, &e.Detail)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database connection.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
