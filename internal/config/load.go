package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the optional service configuration file consulted by
// Load when present in the working directory.
const DefaultConfigFile = "dcc.yaml"

// Load merges Default() with an optional YAML file and DCC_* environment
// overrides, then validates the result.
func Load() (*ServiceConfig, error) {
	cfg := Default()

	if _, err := os.Stat(DefaultConfigFile); err == nil {
		if err := loadFromFile(DefaultConfigFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", DefaultConfigFile, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays YAML fields onto cfg; absent fields keep their
// current values.
func loadFromFile(path string, cfg *ServiceConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return nil
}

// applyEnvOverrides applies DCC_* environment variables to the config.
// Unparseable values are ignored in favor of the current setting.
func applyEnvOverrides(cfg *ServiceConfig) {
	if val := os.Getenv("DCC_API_KEYS"); val != "" {
		cfg.APIKeys = splitList(val)
	}
	if val := os.Getenv("DCC_ALLOWED_NETWORKS"); val != "" {
		cfg.AllowedNetworks = splitList(val)
	}
	if val := os.Getenv("DCC_INGRESS_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.IngressRateLimit.RatePerSecond = rate
		}
	}
	if val := os.Getenv("DCC_INGRESS_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil {
			cfg.IngressRateLimit.Burst = burst
		}
	}
	if val := os.Getenv("DCC_EXECUTION_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.ExecutionRateLimit.RatePerSecond = rate
		}
	}
	if val := os.Getenv("DCC_EXECUTION_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil {
			cfg.ExecutionRateLimit.Burst = burst
		}
	}
	if val := os.Getenv("DCC_QUEUE_MAXSIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			cfg.QueueMaxsize = size
		}
	}
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
