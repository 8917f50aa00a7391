// Package config holds the control service's runtime configuration: static
// startup values plus the live store that PATCH /config mutates.
package config

import (
	"errors"
	"fmt"
	"net/netip"
)

// Validation errors shared by construction and live patching.
var (
	ErrNoAPIKeys            = errors.New("at least one API key must be configured")
	ErrQueueSizeNotPositive = errors.New("queue_maxsize must be positive")
)

// RateLimitSettings are the token-bucket parameters for one limiter.
type RateLimitSettings struct {
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `json:"burst" yaml:"burst"`
}

// Validate rejects non-positive rate or burst.
func (s RateLimitSettings) Validate() error {
	if s.RatePerSecond <= 0 {
		return errors.New("rate_per_second must be positive")
	}
	if s.Burst <= 0 {
		return errors.New("burst must be a positive integer")
	}
	return nil
}

// ServiceConfig is the runtime configuration for the control service.
type ServiceConfig struct {
	APIKeys            []string          `yaml:"api_keys"`
	AllowedNetworks    []string          `yaml:"allowed_networks"`
	IngressRateLimit   RateLimitSettings `yaml:"ingress_rate_limit"`
	ExecutionRateLimit RateLimitSettings `yaml:"execution_rate_limit"`
	QueueMaxsize       int               `yaml:"queue_maxsize"`
}

// Default returns the baseline configuration. API keys have no default and
// must be supplied by file or environment.
func Default() *ServiceConfig {
	return &ServiceConfig{
		AllowedNetworks:    []string{"127.0.0.0/8"},
		IngressRateLimit:   RateLimitSettings{RatePerSecond: 5.0, Burst: 5},
		ExecutionRateLimit: RateLimitSettings{RatePerSecond: 10.0, Burst: 5},
		QueueMaxsize:       32,
	}
}

// Validate checks the full configuration, including CIDR syntax.
func Validate(cfg *ServiceConfig) error {
	if len(cfg.APIKeys) == 0 {
		return ErrNoAPIKeys
	}
	if cfg.QueueMaxsize <= 0 {
		return ErrQueueSizeNotPositive
	}
	if err := cfg.IngressRateLimit.Validate(); err != nil {
		return fmt.Errorf("ingress_rate_limit: %w", err)
	}
	if err := cfg.ExecutionRateLimit.Validate(); err != nil {
		return fmt.Errorf("execution_rate_limit: %w", err)
	}
	if _, err := ParseNetworks(cfg.AllowedNetworks); err != nil {
		return err
	}
	return nil
}

// ParseNetworks parses CIDR strings into prefixes, preserving order.
func ParseNetworks(networks []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(networks))
	for _, raw := range networks {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("allowed_networks: invalid CIDR %q: %w", raw, err)
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}
