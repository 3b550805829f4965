// Package config loads chaosd/actiond configuration from a YAML file,
// environment variables, and built-in defaults, using spf13/viper the way
// the teacher wires its own layered config: environment variables override
// the file, and the file overrides the defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for either binary. chaosd uses every
// section; actiond uses Server, TargetStack, Concurrency (only
// ActionsPerMinute, which sizes the HTTP write-request limiter; the
// remediation governor runs at its own fixed rate), Audit, KillSwitch
// (read-only, to refuse remediation while a chaos kill switch is engaged)
// and Log.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	TargetStack TargetStackConfig `mapstructure:"target_stack"`
	Bounds      BoundsConfig      `mapstructure:"bounds"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Rollback    RollbackConfig    `mapstructure:"rollback"`
	Audit       AuditConfig       `mapstructure:"audit"`
	KillSwitch  KillSwitchConfig  `mapstructure:"kill_switch"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TargetStackConfig names the system under test: the containers, API base
// URLs, database, and files that fault modules act against.
type TargetStackConfig struct {
	APIContainer      string `mapstructure:"api_container"`
	DBContainer       string `mapstructure:"db_container"`
	APIBaseURL        string `mapstructure:"api_base_url"`
	DatabaseURL       string `mapstructure:"database_url"`
	EnvFilePath       string `mapstructure:"env_file_path"`
	ComposeFilePath   string `mapstructure:"compose_file_path"`
	LimitConfigPath   string `mapstructure:"limit_config_path"`
	MigrationVersionTable string `mapstructure:"migration_version_table"`
	// Allowlist restricts which target identifiers (container names,
	// database URLs) attacks may claim. Empty means no restriction.
	Allowlist []string `mapstructure:"allowlist"`
}

// BoundsConfig carries the per-kind numeric bounds from spec.md §4.2,
// defaulting to the spec's own ranges. Only Validate reads them (min must
// not exceed max); the fault modules enforce their own fixed bounds in
// their Params validation tags, so overriding these values does not change
// which parameters an attack accepts.
type BoundsConfig struct {
	DBPool          DBPoolBounds          `mapstructure:"db_pool"`
	LongTransaction LongTransactionBounds `mapstructure:"long_transaction"`
	RateLimit       RateLimitBounds       `mapstructure:"rate_limit"`
}

// DBPoolBounds bounds the db_pool fault's connections/hold_seconds.
type DBPoolBounds struct {
	MinConnections int `mapstructure:"min_connections"`
	MaxConnections int `mapstructure:"max_connections"`
	MinHoldSeconds int `mapstructure:"min_hold_seconds"`
	MaxHoldSeconds int `mapstructure:"max_hold_seconds"`
}

// LongTransactionBounds bounds the long_transaction fault's lock_count/duration_seconds.
type LongTransactionBounds struct {
	MinLockCount       int `mapstructure:"min_lock_count"`
	MaxLockCount       int `mapstructure:"max_lock_count"`
	MinDurationSeconds int `mapstructure:"min_duration_seconds"`
	MaxDurationSeconds int `mapstructure:"max_duration_seconds"`
}

// RateLimitBounds bounds the rate_limit fault's flood_rate/flood_requests.
type RateLimitBounds struct {
	MaxFloodRate     int `mapstructure:"max_flood_rate"`
	MaxFloodRequests int `mapstructure:"max_flood_requests"`
}

// ConcurrencyConfig caps how many attacks (or remediation actions) may run
// at once, globally and per kind.
type ConcurrencyConfig struct {
	GlobalCap         int            `mapstructure:"global_cap"`
	PerKindCap        map[string]int `mapstructure:"per_kind_cap"`
	ActionsPerMinute  int            `mapstructure:"actions_per_minute"`
}

// RollbackConfig controls the automatic-rollback timer.
type RollbackConfig struct {
	DefaultGracePeriod time.Duration `mapstructure:"default_grace_period"`
	KillSwitchGrace    time.Duration `mapstructure:"kill_switch_grace"`
}

// AuditConfig selects where the append-only execution/attack log lands.
// "postgres" persists entries to the target database's audit_log table;
// "stdout" and "file" both write entries through the process logger.
// FilePath is accepted but not read: no sink writes to a file of its own.
type AuditConfig struct {
	Sink       string `mapstructure:"sink"` // "stdout", "file", or "postgres"
	FilePath   string `mapstructure:"file_path"`
}

// KillSwitchConfig controls the global kill switch's initial state and
// optional multi-replica coordination.
type KillSwitchConfig struct {
	InitiallyEngaged bool         `mapstructure:"initially_engaged"`
	Redis            RedisConfig  `mapstructure:"redis"`
}

// RedisConfig is only consulted when Addr is non-empty; an empty Addr
// means the kill switch is a single-process atomic.Bool.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig controls the structured logger built by internal/logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration from defaults, an optional file path, and
// environment variables prefixed CHAOS_ (e.g. CHAOS_SERVER_PORT), in that
// increasing order of precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("chaos")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("target_stack.api_container", "target-api")
	v.SetDefault("target_stack.db_container", "target-db")
	v.SetDefault("target_stack.migration_version_table", "goose_db_version")

	v.SetDefault("bounds.db_pool.min_connections", 1)
	v.SetDefault("bounds.db_pool.max_connections", 500)
	v.SetDefault("bounds.db_pool.min_hold_seconds", 1)
	v.SetDefault("bounds.db_pool.max_hold_seconds", 600)

	v.SetDefault("bounds.long_transaction.min_lock_count", 1)
	v.SetDefault("bounds.long_transaction.max_lock_count", 10000)
	v.SetDefault("bounds.long_transaction.min_duration_seconds", 1)
	v.SetDefault("bounds.long_transaction.max_duration_seconds", 3600)

	v.SetDefault("bounds.rate_limit.max_flood_rate", 10000)
	v.SetDefault("bounds.rate_limit.max_flood_requests", 1000000)

	v.SetDefault("concurrency.global_cap", 10)
	v.SetDefault("concurrency.actions_per_minute", 30)

	v.SetDefault("rollback.default_grace_period", 5*time.Minute)
	v.SetDefault("rollback.kill_switch_grace", 10*time.Second)

	v.SetDefault("audit.sink", "stdout")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
}

// Validate rejects configurations that would let an attack or remediation
// run outside a sane envelope.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Bounds.DBPool.MinConnections > c.Bounds.DBPool.MaxConnections {
		return fmt.Errorf("bounds.db_pool: min_connections exceeds max_connections")
	}
	if c.Bounds.LongTransaction.MinLockCount > c.Bounds.LongTransaction.MaxLockCount {
		return fmt.Errorf("bounds.long_transaction: min_lock_count exceeds max_lock_count")
	}
	if c.Concurrency.GlobalCap <= 0 {
		return fmt.Errorf("concurrency.global_cap must be greater than 0")
	}
	if c.Rollback.DefaultGracePeriod <= 0 {
		return fmt.Errorf("rollback.default_grace_period must be greater than 0")
	}
	switch c.Audit.Sink {
	case "stdout", "file", "postgres":
	default:
		return fmt.Errorf("audit.sink must be stdout, file, or postgres")
	}
	return nil
}
