// Package config loads the runtime's tunable defaults (retry/backoff,
// circuit-breaker, metrics window, log buffer capacity) from a YAML file,
// the same read-file/unmarshal/apply-defaults shape as the teacher's
// internal/scheduler.loadConfig.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RetryConfig holds the per-simulator retry policy from spec.md §4.4.
type RetryConfig struct {
	MaxRetries           int           `yaml:"max_retries"`
	BaseDelay            time.Duration `yaml:"base_delay"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
}

// CircuitBreakerConfig holds the opt-in breaker defaults from spec.md §4.2.
type CircuitBreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// MetricsConfig tunes the MetricsCollector's sliding window.
type MetricsConfig struct {
	ResponseTimeWindow int `yaml:"response_time_window"`
}

// LogConfig tunes the per-project log ring buffer.
type LogConfig struct {
	BufferCapacity int `yaml:"buffer_capacity"`
	ReplayCount    int `yaml:"replay_count"`
}

// RuntimeConfig is the top-level document loaded at process start.
type RuntimeConfig struct {
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Log            LogConfig            `yaml:"log"`
}

// Default returns the spec.md-mandated defaults: max_retries=3,
// base_delay=1s, max_consecutive_errors=10, breaker threshold 5 /
// recovery 60s, a 100-entry response-time window, and a 100-entry log
// buffer replaying 20 entries to new subscribers.
func Default() RuntimeConfig {
	return RuntimeConfig{
		Retry: RetryConfig{
			MaxRetries:           3,
			BaseDelay:            time.Second,
			MaxConsecutiveErrors: 10,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
		},
		Metrics: MetricsConfig{
			ResponseTimeWindow: 100,
		},
		Log: LogConfig{
			BufferCapacity: 100,
			ReplayCount:    20,
		},
	}
}

// Load reads path as YAML and overlays it onto Default(), so a partial
// file only needs to set the fields it wants to change.
func Load(path string) (RuntimeConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read runtime config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse runtime config: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// applyDefaults fills in zero-valued fields left unset by a partial YAML
// document, mirroring the teacher's loadConfig "set defaults" pass.
func applyDefaults(cfg *RuntimeConfig) {
	d := Default()
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = d.Retry.MaxRetries
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = d.Retry.BaseDelay
	}
	if cfg.Retry.MaxConsecutiveErrors == 0 {
		cfg.Retry.MaxConsecutiveErrors = d.Retry.MaxConsecutiveErrors
	}
	if cfg.CircuitBreaker.FailureThreshold == 0 {
		cfg.CircuitBreaker.FailureThreshold = d.CircuitBreaker.FailureThreshold
	}
	if cfg.CircuitBreaker.RecoveryTimeout == 0 {
		cfg.CircuitBreaker.RecoveryTimeout = d.CircuitBreaker.RecoveryTimeout
	}
	if cfg.Metrics.ResponseTimeWindow == 0 {
		cfg.Metrics.ResponseTimeWindow = d.Metrics.ResponseTimeWindow
	}
	if cfg.Log.BufferCapacity == 0 {
		cfg.Log.BufferCapacity = d.Log.BufferCapacity
	}
	if cfg.Log.ReplayCount == 0 {
		cfg.Log.ReplayCount = d.Log.ReplayCount
	}
}
