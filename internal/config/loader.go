package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// sectionPrefixes maps environment variable prefixes to config sections.
// The first underscore after the section name becomes the separator;
// remaining underscores stay part of the field name:
//
//	ORCHESTRATOR_CRITICAL_PRIORITY -> orchestrator.critical_priority
//	HEALTH_CHECK_INTERVAL          -> health.check_interval
//	TELEMETRY_SERVICE_NAME         -> telemetry.service_name
var sectionPrefixes = []string{"logging", "telemetry", "orchestrator", "health", "remediation"}

// Load loads configuration from a YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables
//  2. YAML config file
//  3. Hardcoded defaults
//
// If configPath is empty, only defaults and environment variables apply.
// A nonexistent configPath is an error so a mistyped --config flag fails
// loudly instead of silently running on defaults.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", transformEnv), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// transformEnv maps an environment variable name to a config key, or
// returns "" for variables that do not belong to orchestd.
func transformEnv(s string) string {
	lower := strings.ToLower(s)
	for _, section := range sectionPrefixes {
		prefix := section + "_"
		if strings.HasPrefix(lower, prefix) && len(lower) > len(prefix) {
			return section + "." + lower[len(prefix):]
		}
	}
	return ""
}
