// Package config provides configuration loading for orchestd.
package config

import (
	"fmt"
	"time"
)

// Config is the root orchestd configuration.
type Config struct {
	Logging      LoggingConfig      `koanf:"logging"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Health       HealthConfig       `koanf:"health"`
	Remediation  RemediationConfig  `koanf:"remediation"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	ServiceName    string   `koanf:"service_name"`
	ServiceVersion string   `koanf:"service_version"`
	Insecure       bool     `koanf:"insecure"`
	ExportInterval Duration `koanf:"export_interval"`
	EventBuffer    int      `koanf:"event_buffer"`
}

// OrchestratorConfig controls goal execution.
type OrchestratorConfig struct {
	// CriticalPriority is the threshold at or above which a failed task
	// triggers remediation before later phases run.
	CriticalPriority int `koanf:"critical_priority"`

	// TaskTimeout is the default per-task execution timeout. A task may
	// override it in its own definition.
	TaskTimeout Duration `koanf:"task_timeout"`

	// MaxConcurrency caps concurrent task executions within one phase.
	// Zero means unbounded.
	MaxConcurrency int `koanf:"max_concurrency"`
}

// HealthConfig controls artifact health monitoring.
type HealthConfig struct {
	// CheckInterval is the continuous monitoring cadence per artifact.
	CheckInterval Duration `koanf:"check_interval"`

	// HistorySize bounds the retained report ring buffer per artifact.
	HistorySize int `koanf:"history_size"`

	// AutoRemediate enables the out-of-band remediation trigger on
	// newly detected critical issues.
	AutoRemediate bool `koanf:"auto_remediate"`
}

// RemediationConfig controls solution generation and application.
type RemediationConfig struct {
	// MaxAttempts bounds distinct solutions tried per episode.
	MaxAttempts int `koanf:"max_attempts"`

	// MaxCandidates caps generated solutions per episode.
	MaxCandidates int `koanf:"max_candidates"`

	// MaxComplexity filters out solutions above this complexity (1-10).
	MaxComplexity int `koanf:"max_complexity"`

	// MinConfidence filters out solutions below this confidence (0-1).
	MinConfidence float64 `koanf:"min_confidence"`

	// AuditTrailSize bounds retained episode records.
	AuditTrailSize int `koanf:"audit_trail_size"`

	// StepHook is an optional shell command invoked for every solution
	// step, with the step and artifact passed in the environment. When
	// empty, steps are logged and assumed applied.
	StepHook string `koanf:"step_hook"`
}

// NewDefaultConfig returns configuration with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			ServiceName:    "orchestd",
			ServiceVersion: "0.1.0",
			Insecure:       true,
			ExportInterval: Duration(15 * time.Second),
			EventBuffer:    256,
		},
		Orchestrator: OrchestratorConfig{
			CriticalPriority: 8,
			TaskTimeout:      Duration(5 * time.Minute),
			MaxConcurrency:   0,
		},
		Health: HealthConfig{
			CheckInterval: Duration(30 * time.Second),
			HistorySize:   50,
			AutoRemediate: true,
		},
		Remediation: RemediationConfig{
			MaxAttempts:    2,
			MaxCandidates:  5,
			MaxComplexity:  8,
			MinConfidence:  0.3,
			AuditTrailSize: 100,
		},
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.ServiceName == "" {
			return fmt.Errorf("telemetry.service_name is required when telemetry is enabled")
		}
		if c.Telemetry.ExportInterval.Duration() <= 0 {
			return fmt.Errorf("telemetry.export_interval must be positive")
		}
	}
	if c.Telemetry.EventBuffer <= 0 {
		return fmt.Errorf("telemetry.event_buffer must be positive, got %d", c.Telemetry.EventBuffer)
	}

	if c.Orchestrator.CriticalPriority < 1 {
		return fmt.Errorf("orchestrator.critical_priority must be at least 1, got %d", c.Orchestrator.CriticalPriority)
	}
	if c.Orchestrator.TaskTimeout.Duration() <= 0 {
		return fmt.Errorf("orchestrator.task_timeout must be positive")
	}
	if c.Orchestrator.MaxConcurrency < 0 {
		return fmt.Errorf("orchestrator.max_concurrency cannot be negative, got %d", c.Orchestrator.MaxConcurrency)
	}

	if c.Health.CheckInterval.Duration() <= 0 {
		return fmt.Errorf("health.check_interval must be positive")
	}
	if c.Health.HistorySize <= 0 {
		return fmt.Errorf("health.history_size must be positive, got %d", c.Health.HistorySize)
	}

	if c.Remediation.MaxAttempts < 1 {
		return fmt.Errorf("remediation.max_attempts must be at least 1, got %d", c.Remediation.MaxAttempts)
	}
	if c.Remediation.MaxCandidates < 1 {
		return fmt.Errorf("remediation.max_candidates must be at least 1, got %d", c.Remediation.MaxCandidates)
	}
	if c.Remediation.MaxComplexity < 1 || c.Remediation.MaxComplexity > 10 {
		return fmt.Errorf("remediation.max_complexity must be in [1,10], got %d", c.Remediation.MaxComplexity)
	}
	if c.Remediation.MinConfidence < 0 || c.Remediation.MinConfidence > 1 {
		return fmt.Errorf("remediation.min_confidence must be in [0,1], got %f", c.Remediation.MinConfidence)
	}
	if c.Remediation.AuditTrailSize <= 0 {
		return fmt.Errorf("remediation.audit_trail_size must be positive, got %d", c.Remediation.AuditTrailSize)
	}

	return nil
}
