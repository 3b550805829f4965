package dbadapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chaoslab/faultplane/internal/resilience"
)

// Pool is the DB adapter used by internal/faults/dbpool and
// internal/faults/longtransaction (via OpenScoped), and by actiond's
// health verification step.
type Pool struct {
	pool     *pgxpool.Pool
	cfg      Config
	logger   *slog.Logger
	isClosed atomic.Bool
}

// New builds a Pool that has not yet connected.
func New(cfg Config, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{cfg: cfg, logger: logger}
}

// Connect opens the pgxpool and verifies it with a ping.
func (p *Pool) Connect(ctx context.Context) error {
	if p.isClosed.Load() {
		return ErrConnectionClosed
	}
	if err := p.cfg.Validate(); err != nil {
		return err
	}

	poolConfig, err := pgxpool.ParseConfig(p.cfg.DSN)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	poolConfig.MaxConns = p.cfg.MaxConns
	poolConfig.MinConns = p.cfg.MinConns
	poolConfig.MaxConnLifetime = p.cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = p.cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = p.cfg.HealthCheckPeriod

	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	start := time.Now()
	// The target database may still be coming up (fresh container,
	// failover in progress), so the dial+ping is retried against
	// transient network errors rather than failing on the first attempt.
	retryPolicy := resilience.DefaultPolicy()
	retryPolicy.ErrorChecker = resilience.NetworkErrorChecker{}
	retryPolicy.Logger = p.logger

	pool, err := resilience.WithRetryFunc(connectCtx, retryPolicy, func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(connectCtx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	p.pool = pool
	p.logger.Info("connected to target database", "connection_time", time.Since(start), "max_conns", p.cfg.MaxConns)
	return nil
}

// Close closes the underlying pool.
func (p *Pool) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
	p.isClosed.Store(true)
}

// Health pings the database, bounded by a short internal timeout so a
// status probe never outlives its caller's own budget.
func (p *Pool) Health(ctx context.Context) error {
	if p.pool == nil {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := p.pool.QueryRow(checkCtx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("%w: %v", ErrHealthCheckFailed, err)
	}
	if result != 1 {
		return ErrHealthCheckFailed
	}
	return nil
}

// Stats reports the underlying pgxpool's connection counts.
func (p *Pool) Stats() pgxpool.Stat {
	if p.pool == nil {
		return pgxpool.Stat{}
	}
	return *p.pool.Stat()
}

// Exec runs a statement against the shared pool (not a scoped connection).
func (p *Pool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	if p.pool == nil {
		return pgconn.CommandTag{}, ErrNotConnected
	}
	return p.pool.Exec(ctx, sql, args...)
}

// QueryRow runs a query against the shared pool and returns one row.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if p.pool == nil {
		return errRow{ErrNotConnected}
	}
	return p.pool.QueryRow(ctx, sql, args...)
}

// InTransaction runs fn inside a BEGIN/COMMIT, rolling back on any error —
// used by remediation verification steps that must read consistent state.
func (p *Pool) InTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if p.pool == nil {
		return ErrNotConnected
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("dbadapter: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// TerminateBackend forcibly kills a Postgres backend by pid — used by the
// long_transaction fault's forced rollback path when the held connection
// itself is unresponsive.
func (p *Pool) TerminateBackend(ctx context.Context, pid int32) error {
	if p.pool == nil {
		return ErrNotConnected
	}
	_, err := p.pool.Exec(ctx, "SELECT pg_terminate_backend($1)", pid)
	return err
}

// ScopedConn is a single connection acquired out of the pool and held for
// the lifetime of one attack — used by db_pool (to exhaust the pool) and
// long_transaction (to hold a lock across Observe calls).
type ScopedConn struct {
	conn *pgxpool.Conn
	pid  int32
}

// OpenScoped acquires one connection and records its backend pid so the
// registry can log/terminate it later.
func (p *Pool) OpenScoped(ctx context.Context) (*ScopedConn, error) {
	if p.pool == nil {
		return nil, ErrNotConnected
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbadapter: acquire scoped connection: %w", err)
	}

	var pid int32
	if err := conn.QueryRow(ctx, "SELECT pg_backend_pid()").Scan(&pid); err != nil {
		conn.Release()
		return nil, fmt.Errorf("dbadapter: read backend pid: %w", err)
	}

	return &ScopedConn{conn: conn, pid: pid}, nil
}

// PID returns the Postgres backend pid backing this connection.
func (s *ScopedConn) PID() int32 { return s.pid }

// Exec runs a statement on the scoped connection.
func (s *ScopedConn) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return s.conn.Exec(ctx, sql, args...)
}

// QueryRow runs a query on the scoped connection.
func (s *ScopedConn) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return s.conn.QueryRow(ctx, sql, args...)
}

// Release returns the connection to the pool. Callers that rolled back via
// TerminateBackend should still call Release to free the pool slot.
func (s *ScopedConn) Release() {
	s.conn.Release()
}

// QueryRowsBlockedBy returns the query text of every backend currently
// waiting on a lock held by pid, used by the long_transaction fault's
// Observe to populate blocked_count/blocked_queries.
func (p *Pool) QueryRowsBlockedBy(ctx context.Context, pid int32) ([]string, error) {
	if p.pool == nil {
		return nil, ErrNotConnected
	}
	const q = `
		SELECT blocked.query
		FROM pg_stat_activity AS blocked
		JOIN pg_locks AS blocked_locks ON blocked_locks.pid = blocked.pid AND NOT blocked_locks.granted
		JOIN pg_locks AS blocking_locks
			ON blocking_locks.locktype = blocked_locks.locktype
			AND blocking_locks.database IS NOT DISTINCT FROM blocked_locks.database
			AND blocking_locks.relation IS NOT DISTINCT FROM blocked_locks.relation
			AND blocking_locks.page IS NOT DISTINCT FROM blocked_locks.page
			AND blocking_locks.tuple IS NOT DISTINCT FROM blocked_locks.tuple
			AND blocking_locks.pid != blocked_locks.pid
			AND blocking_locks.granted
		WHERE blocking_locks.pid = $1
		LIMIT 50`

	rows, err := p.pool.Query(ctx, q, pid)
	if err != nil {
		return nil, fmt.Errorf("dbadapter: query blocked backends: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			return nil, fmt.Errorf("dbadapter: scan blocked query: %w", err)
		}
		queries = append(queries, query)
	}
	return queries, rows.Err()
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...interface{}) error { return r.err }
