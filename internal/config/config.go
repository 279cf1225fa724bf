// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Fields carry koanf tags; keys are flat and snake_case.
//   - New returns a Config populated with defaults; Load layers overrides on top.
//   - Durations are configured in milliseconds and exposed through accessors.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9511".
	Addr string `koanf:"addr"`

	// DBDriver is either "sqlite" or "postgres".
	DBDriver string `koanf:"db_driver"`

	// DBDSN is passed to sql.Open. File-backed SQLite DSNs gain _txlock=immediate
	// and a busy_timeout when they do not set them.
	DBDSN string `koanf:"db_dsn"`

	// DBMaxOpenConns bounds the shared connection pool.
	DBMaxOpenConns int `koanf:"db_max_open_conns"`

	// ClusterSize caps accounts per cluster of a clustered leaderboard.
	ClusterSize int `koanf:"cluster_size"`

	// ClusterMarker is the name prefix that makes a new leaderboard clustered.
	ClusterMarker string `koanf:"cluster_marker"`

	// DefaultLimit applies when a query omits limit; MaxLimit caps it.
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`

	// AggregateConcurrency bounds parallel cluster scans of one listing.
	AggregateConcurrency int `koanf:"aggregate_concurrency"`

	// QueryTimeoutMS bounds each store call of a ranked query.
	QueryTimeoutMS int `koanf:"query_timeout_ms"`

	// ExpirySweepIntervalMS is the period of the expired-row sweeper; 0 disables it.
	ExpirySweepIntervalMS int `koanf:"expiry_sweep_interval_ms"`

	// PurgeQueueSize bounds pending account-deletion events.
	PurgeQueueSize int `koanf:"purge_queue_size"`

	// PurgeWorkerCount sets the number of account-deletion workers.
	PurgeWorkerCount int `koanf:"purge_worker_count"`

	// DedupeSize sets the size of the purge event deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// SocialURL is the base URL of the social service; empty means nobody has friends.
	SocialURL       string `koanf:"social_url"`
	SocialTimeoutMS int    `koanf:"social_timeout_ms"`

	OtelEnabled  bool   `koanf:"otel_enabled"`
	OtelEndpoint string `koanf:"otel_endpoint"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9511",
		DBDriver:              DriverSQLite,
		DBDSN:                 "file:leaderboard.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate",
		DBMaxOpenConns:        runtime.NumCPU() * 4,
		ClusterSize:           1000,
		ClusterMarker:         "@",
		DefaultLimit:          1000,
		MaxLimit:              1000,
		AggregateConcurrency:  8,
		QueryTimeoutMS:        5000,
		ExpirySweepIntervalMS: 60_000,
		PurgeQueueSize:        10_000,
		PurgeWorkerCount:      runtime.NumCPU(),
		DedupeSize:            100_000,
		SocialTimeoutMS:       2000,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres:
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	case strings.TrimSpace(c.DBDSN) == "":
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.ClusterMarker) == "":
		return fmt.Errorf("%w: cluster_marker must not be empty", ErrInvalidConfig)
	}

	positive := []struct {
		name  string
		value int
	}{
		{"db_max_open_conns", c.DBMaxOpenConns},
		{"cluster_size", c.ClusterSize},
		{"default_limit", c.DefaultLimit},
		{"max_limit", c.MaxLimit},
		{"aggregate_concurrency", c.AggregateConcurrency},
		{"query_timeout_ms", c.QueryTimeoutMS},
		{"purge_queue_size", c.PurgeQueueSize},
		{"purge_worker_count", c.PurgeWorkerCount},
		{"dedupe_size", c.DedupeSize},
		{"social_timeout_ms", c.SocialTimeoutMS},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.name, p.value)
		}
	}
	if c.ExpirySweepIntervalMS < 0 {
		return fmt.Errorf("%w: expiry_sweep_interval_ms must not be negative", ErrInvalidConfig)
	}
	if c.DefaultLimit > c.MaxLimit {
		return fmt.Errorf("%w: default_limit %d exceeds max_limit %d", ErrInvalidConfig, c.DefaultLimit, c.MaxLimit)
	}
	return nil
}

// QueryTimeout returns QueryTimeoutMS as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMS) * time.Millisecond
}

// ExpirySweepInterval returns ExpirySweepIntervalMS as a duration.
func (c *Config) ExpirySweepInterval() time.Duration {
	return time.Duration(c.ExpirySweepIntervalMS) * time.Millisecond
}

// SocialTimeout returns SocialTimeoutMS as a duration.
func (c *Config) SocialTimeout() time.Duration {
	return time.Duration(c.SocialTimeoutMS) * time.Millisecond
}
