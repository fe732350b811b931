// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load layers an optional YAML file and TIERLEARN_ env vars on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Supported document store backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the document store: memory or badger.
	StoreBackend string `koanf:"store_backend"`

	// BadgerPath is the data directory used by the badger backend.
	BadgerPath string `koanf:"badger_path"`

	// StoreTimeoutMS bounds every document store call.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`

	// BreakerFailureThreshold is the number of consecutive store failures
	// that opens the circuit breaker.
	BreakerFailureThreshold int `koanf:"breaker_failure_threshold"`

	// BreakerOpenTimeoutMS is how long the breaker stays open before probing.
	BreakerOpenTimeoutMS int `koanf:"breaker_open_timeout_ms"`

	// EventQueueSize bounds the in-memory tracking queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of tracking workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many tracking event ids are remembered for replay detection.
	DedupeSize int `koanf:"dedupe_size"`

	// DefaultTier is the tier a user record is initialized with on first tracking.
	DefaultTier int `koanf:"default_tier"`

	// MaxTier is the highest membership tier accepted by the API and the services.
	MaxTier int `koanf:"max_tier"`

	// MinContentTotal seeds totalContentAvailable when a fresh record would count zero content.
	MinContentTotal int `koanf:"min_content_total"`

	// MigrateCourseTiers rewrites legacy scalar course tiers into tier arrays at startup.
	MigrateCourseTiers bool `koanf:"migrate_course_tiers"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		StoreBackend:            BackendMemory,
		BadgerPath:              "./data",
		StoreTimeoutMS:          3000,
		BreakerFailureThreshold: 5,
		BreakerOpenTimeoutMS:    30_000,
		EventQueueSize:          10_000,
		WorkerCount:             runtime.NumCPU() * 2,
		DedupeSize:              100_000,
		DefaultTier:             1,
		MaxTier:                 10,
		MinContentTotal:         50,
		MigrateCourseTiers:      true,
	}
}

// StoreTimeout returns StoreTimeoutMS as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// BreakerOpenTimeout returns BreakerOpenTimeoutMS as a duration.
func (c *Config) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.BreakerOpenTimeoutMS) * time.Millisecond
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreBackend != BackendMemory && c.StoreBackend != BackendBadger:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	case c.StoreBackend == BackendBadger && c.BadgerPath == "":
		return fmt.Errorf("%w: badger_path is required for the badger backend", ErrInvalidConfig)
	case c.StoreTimeoutMS <= 0:
		return fmt.Errorf("%w: store_timeout_ms must be positive", ErrInvalidConfig)
	case c.DefaultTier < 1:
		return fmt.Errorf("%w: default_tier must be at least 1", ErrInvalidConfig)
	case c.MaxTier < c.DefaultTier:
		return fmt.Errorf("%w: max_tier must be at least default_tier", ErrInvalidConfig)
	}
	return nil
}
