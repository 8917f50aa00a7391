package config

import (
	"net/netip"
	"sync"
)

// Store is the live configuration the dispatcher reads on every request and
// mutates on PATCH /config. All access is guarded; mutations take effect on
// the next operation without restarting the queue or limiters.
type Store struct {
	mu       sync.RWMutex
	cfg      ServiceConfig
	keys     map[string]struct{}
	prefixes []netip.Prefix
}

// NewStore validates cfg and builds the live store.
func NewStore(cfg *ServiceConfig) (*Store, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	prefixes, err := ParseNetworks(cfg.AllowedNetworks)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys[k] = struct{}{}
	}
	return &Store{cfg: *cfg, keys: keys, prefixes: prefixes}, nil
}

// HasAPIKey reports whether key is one of the configured API keys.
func (s *Store) HasAPIKey(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

// Allows reports whether addr falls inside any configured network.
func (s *Store) Allows(addr netip.Addr) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr = addr.Unmap()
	for _, prefix := range s.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// IngressLimit returns the current ingress limiter settings.
func (s *Store) IngressLimit() RateLimitSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.IngressRateLimit
}

// ExecutionLimit returns the current execution limiter settings.
func (s *Store) ExecutionLimit() RateLimitSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ExecutionRateLimit
}

// QueueMaxsize returns the current queue capacity bound.
func (s *Store) QueueMaxsize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.QueueMaxsize
}

// SetIngressLimit records new ingress limiter settings.
func (s *Store) SetIngressLimit(settings RateLimitSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.IngressRateLimit = settings
}

// SetExecutionLimit records new execution limiter settings.
func (s *Store) SetExecutionLimit(settings RateLimitSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ExecutionRateLimit = settings
}

// SetQueueMaxsize records a new queue capacity bound.
func (s *Store) SetQueueMaxsize(maxsize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.QueueMaxsize = maxsize
}

// Snapshot returns the serializable configuration view.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	networks := make([]string, len(s.cfg.AllowedNetworks))
	copy(networks, s.cfg.AllowedNetworks)
	return map[string]any{
		"ingress_rate_limit": map[string]any{
			"rate_per_second": s.cfg.IngressRateLimit.RatePerSecond,
			"burst":           s.cfg.IngressRateLimit.Burst,
		},
		"execution_rate_limit": map[string]any{
			"rate_per_second": s.cfg.ExecutionRateLimit.RatePerSecond,
			"burst":           s.cfg.ExecutionRateLimit.Burst,
		},
		"queue_maxsize":    s.cfg.QueueMaxsize,
		"allowed_networks": networks,
	}
}
