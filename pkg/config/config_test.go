package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateEngineConfig_RejectsOutOfRangeMemoryThreshold(t *testing.T) {
	e := DefaultConfig().Engine
	e.MemoryThreshold = 1.5
	assert.Error(t, ValidateEngineConfig(&e))
}

func TestValidateEngineConfig_RejectsBackpressureAboveHighWaterMark(t *testing.T) {
	e := DefaultConfig().Engine
	e.StreamHighWaterMark = 100
	e.BackpressureThreshold = 200
	assert.Error(t, ValidateEngineConfig(&e))
}

func TestValidatePoolConfig_RequiresKnownType(t *testing.T) {
	p := PoolConfig{Name: "x", Type: "oracle", DSN: "dsn"}
	assert.Error(t, ValidatePoolConfig(&p))
}

func TestValidatePoolConfig_RejectsMinGreaterThanMax(t *testing.T) {
	p := PoolConfig{Name: "x", Type: PoolTypeMySQL, DSN: "dsn", Min: 10, Max: 5}
	assert.Error(t, ValidatePoolConfig(&p))
}

func TestValidateRateLimitTierConfig_RequiresAscendingThresholds(t *testing.T) {
	tier := RateLimitTierConfig{MaxAttempts: 20, Level2Attempts: 10, Level3Attempts: 100}
	assert.Error(t, ValidateRateLimitTierConfig(&tier, "ip"))
}

func TestValidateRateLimitConfig_RejectsInvalidBusinessHours(t *testing.T) {
	r := DefaultConfig().RateLimit
	r.BusinessHoursStart = 30
	assert.Error(t, ValidateRateLimitConfig(&r))
}

func TestValidateConfig_AggregatesPoolErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pools = []PoolConfig{{Name: "", Type: PoolTypeMySQL, DSN: "dsn"}}
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pools[0]")
}

func TestGetSetConfig_RoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 9999
	SetConfig(cfg)
	assert.Equal(t, 9999, GetConfig().Server.Port)
}

func TestDefaultConfig_RateLimitTiersEscalate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Less(t, cfg.RateLimit.IP.MaxAttempts, cfg.RateLimit.IP.Level2Attempts)
	assert.Less(t, cfg.RateLimit.IP.Level2Attempts, cfg.RateLimit.IP.Level3Attempts)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.IP.StandardBlockDuration)
}
