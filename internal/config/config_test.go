package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 8, cfg.Orchestrator.CriticalPriority)
	assert.Equal(t, 2, cfg.Remediation.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Health.CheckInterval.Duration())
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name: "telemetry enabled without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Endpoint = ""
			},
			wantErr: "telemetry.endpoint",
		},
		{
			name:    "critical priority below one",
			mutate:  func(c *Config) { c.Orchestrator.CriticalPriority = 0 },
			wantErr: "critical_priority",
		},
		{
			name:    "zero task timeout",
			mutate:  func(c *Config) { c.Orchestrator.TaskTimeout = 0 },
			wantErr: "task_timeout",
		},
		{
			name:    "zero remediation attempts",
			mutate:  func(c *Config) { c.Remediation.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name:    "complexity out of range",
			mutate:  func(c *Config) { c.Remediation.MaxComplexity = 11 },
			wantErr: "max_complexity",
		},
		{
			name:    "confidence out of range",
			mutate:  func(c *Config) { c.Remediation.MinConfidence = 1.5 },
			wantErr: "min_confidence",
		},
		{
			name:    "zero history size",
			mutate:  func(c *Config) { c.Health.HistorySize = 0 },
			wantErr: "history_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
