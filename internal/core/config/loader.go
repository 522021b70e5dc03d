package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Orchestrator.TickInterval == 0 {
		cfg.Orchestrator.TickInterval = Duration(time.Minute)
	}
	if cfg.Orchestrator.MaxConcurrent == 0 {
		cfg.Orchestrator.MaxConcurrent = 3
	}
	if cfg.Orchestrator.BatchTimeout == 0 {
		cfg.Orchestrator.BatchTimeout = Duration(2 * time.Minute)
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = Duration(2 * time.Second)
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = Duration(60 * time.Second)
	}
	if cfg.Retry.RateLimitCeiling == 0 {
		cfg.Retry.RateLimitCeiling = 5
	}
	if cfg.Retry.RateLimitCooldown == 0 {
		cfg.Retry.RateLimitCooldown = Duration(30 * time.Second)
	}

	if cfg.Reconcile.SimilarityThreshold == 0 {
		cfg.Reconcile.SimilarityThreshold = 0.85
	}
	if cfg.Reconcile.MinHistoryPoints == 0 {
		cfg.Reconcile.MinHistoryPoints = 10
	}
	if cfg.Reconcile.SpreadMultiplier == 0 {
		cfg.Reconcile.SpreadMultiplier = 3.0
	}

	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.Timezone == "" {
			p.Timezone = "Europe/Amsterdam"
		}
		if p.BatchSize == 0 {
			p.BatchSize = 100
		}
		if p.MinRequestInterval == 0 {
			p.MinRequestInterval = Duration(time.Second)
		}
		if p.RequestTimeout == 0 {
			p.RequestTimeout = Duration(30 * time.Second)
		}
	}
}
