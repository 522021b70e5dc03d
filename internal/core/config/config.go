package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so YAML values can be written as "30s", "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppConfig is the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    []ProviderConfig   `yaml:"providers"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Retry        RetryConfig        `yaml:"retry"`
	Reconcile    ReconcileConfig    `yaml:"reconcile"`
	Retention    RetentionConfig    `yaml:"retention"`
	Redis        RedisConfig        `yaml:"redis"`
	Database     DatabaseConfig     `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// RetentionConfig bounds how long history rows and alerts are kept.
// Zero disables pruning for that table.
type RetentionConfig struct {
	History Duration `yaml:"history"`
	Alerts  Duration `yaml:"alerts"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds Redis connection settings for the event surface.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// ProviderConfig holds settings for one retail provider.
type ProviderConfig struct {
	Name               string   `yaml:"name"`
	Schedule           string   `yaml:"schedule"` // cron or named pattern
	Timezone           string   `yaml:"timezone"`
	Active             bool     `yaml:"active"`
	FeedURL            string   `yaml:"feed_url"`
	BatchSize          int      `yaml:"batch_size"`
	MinRequestInterval Duration `yaml:"min_request_interval"`
	RequestTimeout     Duration `yaml:"request_timeout"`
}

// OrchestratorConfig bounds global run concurrency and the scheduler tick.
type OrchestratorConfig struct {
	TickInterval  Duration `yaml:"tick_interval"`
	MaxConcurrent int      `yaml:"max_concurrent"`
	BatchTimeout  Duration `yaml:"batch_timeout"`
}

// RetryConfig parameterizes the retry policy engine.
type RetryConfig struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	InitialDelay      Duration `yaml:"initial_delay"`
	MaxDelay          Duration `yaml:"max_delay"`
	RateLimitCeiling  int      `yaml:"rate_limit_ceiling"`
	RateLimitCooldown Duration `yaml:"rate_limit_cooldown"`
}

// ReconcileConfig parameterizes dedup and validation.
type ReconcileConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MinHistoryPoints    int     `yaml:"min_history_points"`
	SpreadMultiplier    float64 `yaml:"spread_multiplier"` // k in median ± k·MAD
}
