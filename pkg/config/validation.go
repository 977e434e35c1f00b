package config

import (
	"fmt"
)

// ValidateConfig validates a complete Config, collecting every section's
// errors rather than stopping at the first.
func ValidateConfig(c *Config) error {
	var errs []error
	if err := ValidateServerConfig(&c.Server); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateEngineConfig(&c.Engine); err != nil {
		errs = append(errs, err)
	}
	for i := range c.Pools {
		if err := ValidatePoolConfig(&c.Pools[i]); err != nil {
			errs = append(errs, fmt.Errorf("pools[%d] %q: %w", i, c.Pools[i].Name, err))
		}
	}
	if err := ValidateRateLimitConfig(&c.RateLimit); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	msg := "invalid configuration:"
	for _, e := range errs {
		msg += " " + e.Error() + ";"
	}
	return fmt.Errorf("%s", msg)
}

// validateCustomRules runs the same checks Loader.Validate layers on
// top of struct-tag validation.
func validateCustomRules(c *Config) error {
	return ValidateConfig(c)
}

// ValidateServerConfig validates HTTP server settings.
func ValidateServerConfig(s *ServerConfig) error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server port %d out of range", s.Port)
	}
	if s.TLS != nil && s.TLS.Enabled {
		if s.TLS.CertFile == "" || s.TLS.KeyFile == "" {
			return fmt.Errorf("tls enabled but cert_file/key_file not set")
		}
	}
	return nil
}

// ValidateEngineConfig validates execution/optimizer tunables.
func ValidateEngineConfig(e *EngineConfig) error {
	if e.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be >= 0")
	}
	if e.MemoryThreshold < 0 || e.MemoryThreshold > 1 {
		return fmt.Errorf("memory_threshold must be between 0 and 1, got %v", e.MemoryThreshold)
	}
	if e.CacheSize < 0 {
		return fmt.Errorf("cache_size must be >= 0")
	}
	if e.BatchSize < 0 {
		return fmt.Errorf("batch_size must be >= 0")
	}
	if e.StreamHighWaterMark > 0 && e.BackpressureThreshold > e.StreamHighWaterMark {
		return fmt.Errorf("backpressure_threshold (%d) must not exceed stream_high_water_mark (%d)",
			e.BackpressureThreshold, e.StreamHighWaterMark)
	}
	cb := e.CircuitBreaker
	if cb.FailureThreshold < 0 || cb.FailureThreshold > 1 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be between 0 and 1")
	}
	return nil
}

var validPoolTypes = map[PoolType]struct{}{
	PoolTypeMySQL:         {},
	PoolTypeMongo:         {},
	PoolTypeElasticsearch: {},
}

// ValidatePoolConfig validates one named connection pool.
func ValidatePoolConfig(p *PoolConfig) error {
	if p.Name == "" {
		return fmt.Errorf("pool name is required")
	}
	if _, ok := validPoolTypes[p.Type]; !ok {
		return fmt.Errorf("unsupported pool type %q", p.Type)
	}
	if p.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if p.Min < 0 || p.Max < 0 {
		return fmt.Errorf("min/max must be >= 0")
	}
	if p.Max > 0 && p.Min > p.Max {
		return fmt.Errorf("min (%d) must not exceed max (%d)", p.Min, p.Max)
	}
	return nil
}

// ValidateRateLimitTierConfig validates one brute-force tier, requiring
// its attempt thresholds to strictly ascend when all three are set.
func ValidateRateLimitTierConfig(t *RateLimitTierConfig, name string) error {
	if t.MaxAttempts < 0 || t.Level2Attempts < 0 || t.Level3Attempts < 0 {
		return fmt.Errorf("%s: attempt thresholds must be >= 0", name)
	}
	if t.MaxAttempts > 0 && t.Level2Attempts > 0 && t.Level2Attempts <= t.MaxAttempts {
		return fmt.Errorf("%s: level2_attempts (%d) must exceed max_attempts (%d)", name, t.Level2Attempts, t.MaxAttempts)
	}
	if t.Level2Attempts > 0 && t.Level3Attempts > 0 && t.Level3Attempts <= t.Level2Attempts {
		return fmt.Errorf("%s: level3_attempts (%d) must exceed level2_attempts (%d)", name, t.Level3Attempts, t.Level2Attempts)
	}
	return nil
}

// ValidateRateLimitConfig validates all three tiers plus the shared
// business-hours window.
func ValidateRateLimitConfig(r *RateLimitConfig) error {
	if err := ValidateRateLimitTierConfig(&r.IP, "ip"); err != nil {
		return err
	}
	if err := ValidateRateLimitTierConfig(&r.Account, "account"); err != nil {
		return err
	}
	if err := ValidateRateLimitTierConfig(&r.IPAccount, "ip_account"); err != nil {
		return err
	}
	if r.BusinessHoursStart < 0 || r.BusinessHoursStart > 23 || r.BusinessHoursEnd < 0 || r.BusinessHoursEnd > 23 {
		return fmt.Errorf("business hours must be within 0-23")
	}
	return nil
}

// CreateDefaultConfig returns a fresh default configuration, mirroring
// DefaultConfig for callers that only import the validation surface.
func CreateDefaultConfig() *Config {
	return DefaultConfig()
}
