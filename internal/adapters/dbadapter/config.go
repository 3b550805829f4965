// Package dbadapter wraps a pgxpool.Pool for both chaosd (which opens
// scoped connections that a fault owns for its lifetime) and actiond
// (health probes during remediation verification).
package dbadapter

import (
	"fmt"
	"time"
)

// Config describes how to reach the target database.
type Config struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

// DefaultConfig returns sane pool sizing for a target under test.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:               dsn,
		MaxConns:          20,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}
}

// Validate rejects a config that would make the pool useless.
func (c Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("dbadapter: dsn is required")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("dbadapter: max_conns must be greater than 0")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("dbadapter: min_conns cannot exceed max_conns")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("dbadapter: connect_timeout must be greater than 0")
	}
	return nil
}
