package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Orchestrator.CriticalPriority)
	assert.Equal(t, 5, cfg.Remediation.MaxCandidates)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
orchestrator:
  critical_priority: 9
  task_timeout: 2m
health:
  check_interval: 10s
  auto_remediate: false
remediation:
  max_attempts: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Orchestrator.CriticalPriority)
	assert.Equal(t, 2*time.Minute, cfg.Orchestrator.TaskTimeout.Duration())
	assert.Equal(t, 10*time.Second, cfg.Health.CheckInterval.Duration())
	assert.False(t, cfg.Health.AutoRemediate)
	assert.Equal(t, 3, cfg.Remediation.MaxAttempts)
	// Untouched sections keep defaults.
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
orchestrator:
  critical_priority: 5
`)
	t.Setenv("ORCHESTRATOR_CRITICAL_PRIORITY", "9")
	t.Setenv("LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Orchestrator.CriticalPriority)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open config file")
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := writeConfigFile(t, `
remediation:
  max_complexity: 42
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_complexity")
}

func TestTransformEnv(t *testing.T) {
	assert.Equal(t, "orchestrator.critical_priority", transformEnv("ORCHESTRATOR_CRITICAL_PRIORITY"))
	assert.Equal(t, "health.check_interval", transformEnv("HEALTH_CHECK_INTERVAL"))
	assert.Equal(t, "", transformEnv("PATH"))
	assert.Equal(t, "", transformEnv("HEALTH_"))
}
