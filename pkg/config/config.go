package config

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	TLS             *TLSConfig    `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// TLSConfig represents TLS configuration.
type TLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Port      int           `json:"port" yaml:"port"`
	Path      string        `json:"path" yaml:"path"`
	Interval  time.Duration `json:"interval" yaml:"interval"`
	Namespace string        `json:"namespace" yaml:"namespace"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level    string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format   string `json:"format" yaml:"format"` // json, text
	Output   string `json:"output" yaml:"output"` // stdout, stderr, file
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Rotation bool   `json:"rotation" yaml:"rotation"`
}

// OpenTelemetryConfig represents OpenTelemetry configuration.
type OpenTelemetryConfig struct {
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	ServiceName string            `json:"service_name" yaml:"service_name"`
	Tracing     TracingConfig     `json:"tracing" yaml:"tracing"`
	Metrics     OTelMetricsConfig `json:"metrics" yaml:"metrics"`
}

// TracingConfig represents OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Endpoint   string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// OTelMetricsConfig represents OpenTelemetry metrics configuration.
type OTelMetricsConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Endpoint string        `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// TelemetryConfig represents telemetry configuration.
type TelemetryConfig struct {
	Enabled         bool              `json:"enabled" yaml:"enabled"`
	ServiceName     string            `json:"service_name" yaml:"service_name"`
	ServiceVersion  string            `json:"service_version" yaml:"service_version"`
	Environment     string            `json:"environment" yaml:"environment"`
	MetricsEnabled  bool              `json:"metrics_enabled" yaml:"metrics_enabled"`
	TracingEnabled  bool              `json:"tracing_enabled" yaml:"tracing_enabled"`
	OTLPEndpoint    string            `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	MetricsInterval time.Duration     `json:"metrics_interval" yaml:"metrics_interval"`
	Labels          map[string]string `json:"labels" yaml:"labels"`
}

// CircuitBreakerConfig mirrors pkg/recovery.BreakerOptions for the
// registry the engine facade shares across mappings.
type CircuitBreakerConfig struct {
	Window           time.Duration `json:"window" yaml:"window"`
	FailureThreshold float64       `json:"failure_threshold" yaml:"failure_threshold"`
	VolumeThreshold  int           `json:"volume_threshold" yaml:"volume_threshold"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold"`
	Cooldown         time.Duration `json:"cooldown" yaml:"cooldown"`
}

// EngineConfig carries every tunable named in the external interface's
// recognized configuration options: cache sizing, timeouts, the
// performance-optimizer and connection-pooling toggles, and the
// batch/stream execution defaults.
type EngineConfig struct {
	EnableCache                   bool          `json:"enable_cache" yaml:"enable_cache"`
	CacheSize                     int           `json:"cache_size" yaml:"cache_size"`
	EnableMetrics                 bool          `json:"enable_metrics" yaml:"enable_metrics"`
	DefaultTimeout                time.Duration `json:"default_timeout" yaml:"default_timeout"`
	MaxConcurrency                int           `json:"max_concurrency" yaml:"max_concurrency"`
	EnableMemoryManagement        bool          `json:"enable_memory_management" yaml:"enable_memory_management"`
	EnableDataCompression         bool          `json:"enable_data_compression" yaml:"enable_data_compression"`
	EnableConnectionPooling       bool          `json:"enable_connection_pooling" yaml:"enable_connection_pooling"`
	EnableBatchOptimization       bool          `json:"enable_batch_optimization" yaml:"enable_batch_optimization"`
	EnablePerformanceOptimization bool          `json:"enable_performance_optimization" yaml:"enable_performance_optimization"`
	MemoryThreshold               float64       `json:"memory_threshold" yaml:"memory_threshold"`
	CompressionThreshold          int           `json:"compression_threshold" yaml:"compression_threshold"`
	BatchSize                     int           `json:"batch_size" yaml:"batch_size"`
	StreamHighWaterMark           int           `json:"stream_high_water_mark" yaml:"stream_high_water_mark"`
	BackpressureThreshold         int           `json:"backpressure_threshold" yaml:"backpressure_threshold"`
	RecordTimeout                 time.Duration `json:"record_timeout" yaml:"record_timeout"`
	ChunkSize                     int           `json:"chunk_size" yaml:"chunk_size"`
	StopOnError                   bool          `json:"stop_on_error" yaml:"stop_on_error"`
	SkipFailedRecords             bool          `json:"skip_failed_records" yaml:"skip_failed_records"`
	RollbackHistorySize           int           `json:"rollback_history_size" yaml:"rollback_history_size"`
	EnableSnapshots               bool          `json:"enable_snapshots" yaml:"enable_snapshots"`
	CircuitBreaker                CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// PoolType names a pooled destination connection factory in pkg/pool.
type PoolType string

const (
	PoolTypeMySQL         PoolType = "mysql"
	PoolTypeMongo         PoolType = "mongo"
	PoolTypeElasticsearch PoolType = "elasticsearch"
)

// PoolConfig configures one named connection pool created on engine
// startup via pkg/pool.Manager.CreatePool.
type PoolConfig struct {
	Name                string        `json:"name" yaml:"name"`
	Type                PoolType      `json:"type" yaml:"type"`
	DSN                 string        `json:"dsn" yaml:"dsn"`
	Min                 int           `json:"min" yaml:"min"`
	Max                 int           `json:"max" yaml:"max"`
	AcquireTimeout      time.Duration `json:"acquire_timeout" yaml:"acquire_timeout"`
	IdleTimeout         time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval"`
}

// RateLimitTierConfig mirrors pkg/ratelimit.TierOptions for one of the
// three brute-force tiers.
type RateLimitTierConfig struct {
	Window                 time.Duration `json:"window" yaml:"window"`
	MaxAttempts            int           `json:"max_attempts" yaml:"max_attempts"`
	StandardBlockDuration  time.Duration `json:"standard_block_duration" yaml:"standard_block_duration"`
	Level2Attempts         int           `json:"level2_attempts" yaml:"level2_attempts"`
	Level2BlockDuration    time.Duration `json:"level2_block_duration" yaml:"level2_block_duration"`
	Level3Attempts         int           `json:"level3_attempts" yaml:"level3_attempts"`
	Level3BlockDuration    time.Duration `json:"level3_block_duration" yaml:"level3_block_duration"`
	PermanentLockThreshold int           `json:"permanent_lock_threshold,omitempty" yaml:"permanent_lock_threshold,omitempty"`
}

// RateLimitConfig configures pkg/ratelimit.Manager.
type RateLimitConfig struct {
	IP                    RateLimitTierConfig `json:"ip" yaml:"ip"`
	Account               RateLimitTierConfig `json:"account" yaml:"account"`
	IPAccount             RateLimitTierConfig `json:"ip_account" yaml:"ip_account"`
	SuspiciousIdentifiers []string            `json:"suspicious_identifiers,omitempty" yaml:"suspicious_identifiers,omitempty"`
	SuspiciousUserAgents  []string            `json:"suspicious_user_agents,omitempty" yaml:"suspicious_user_agents,omitempty"`
	BusinessHoursStart    int                 `json:"business_hours_start" yaml:"business_hours_start"`
	BusinessHoursEnd      int                 `json:"business_hours_end" yaml:"business_hours_end"`
	Whitelist             []string            `json:"whitelist,omitempty" yaml:"whitelist,omitempty"`
	HistorySize           int                 `json:"history_size" yaml:"history_size"`
}

// Config is the mapping engine's root configuration.
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Engine        EngineConfig        `json:"engine" yaml:"engine"`
	Pools         []PoolConfig        `json:"pools" yaml:"pools"`
	RateLimit     RateLimitConfig     `json:"rate_limit" yaml:"rate_limit"`
	Metrics       MetricsConfig       `json:"metrics" yaml:"metrics"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	OpenTelemetry OpenTelemetryConfig `json:"opentelemetry" yaml:"opentelemetry"`
	Telemetry     TelemetryConfig     `json:"telemetry" yaml:"telemetry"`
	Debug         bool                `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// Global is the current process-wide configuration, set once by
// LoadConfiguration and refreshed on every hot-reload.
var Global *Config

// GetConfig returns the current global configuration.
func GetConfig() *Config { return Global }

// SetConfig sets the global configuration.
func SetConfig(cfg *Config) { Global = cfg }

// DefaultConfig returns a configuration with every tunable set. Most
// values match what pkg/facade, pkg/perf, and pkg/ratelimit apply on
// their own when left zero-valued; the exceptions are CacheSize (500,
// where pkg/facade defaults to 1000) and the Account and IPAccount
// rate-limit tiers, which are stricter than the single threshold set
// pkg/ratelimit gives every tier by default.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			EnableCache:                   true,
			CacheSize:                     500,
			EnableMetrics:                 true,
			DefaultTimeout:                30 * time.Second,
			MaxConcurrency:                10,
			EnableMemoryManagement:        true,
			EnableConnectionPooling:       true,
			EnableBatchOptimization:       true,
			EnablePerformanceOptimization: true,
			MemoryThreshold:               0.8,
			CompressionThreshold:          1 << 20,
			BatchSize:                     100,
			StreamHighWaterMark:           1000,
			BackpressureThreshold:         750,
			RecordTimeout:                 10 * time.Second,
			ChunkSize:                     100,
			RollbackHistorySize:           1000,
			CircuitBreaker: CircuitBreakerConfig{
				Window:           time.Minute,
				FailureThreshold: 0.5,
				VolumeThreshold:  10,
				SuccessThreshold: 3,
				Cooldown:         30 * time.Second,
			},
		},
		RateLimit: RateLimitConfig{
			IP: RateLimitTierConfig{
				Window: 15 * time.Minute, MaxAttempts: 20, StandardBlockDuration: 15 * time.Minute,
				Level2Attempts: 50, Level2BlockDuration: time.Hour,
				Level3Attempts: 100, Level3BlockDuration: 24 * time.Hour,
			},
			Account: RateLimitTierConfig{
				Window: 15 * time.Minute, MaxAttempts: 10, StandardBlockDuration: 15 * time.Minute,
				Level2Attempts: 25, Level2BlockDuration: time.Hour,
				Level3Attempts: 50, Level3BlockDuration: 24 * time.Hour,
				PermanentLockThreshold: 200,
			},
			IPAccount: RateLimitTierConfig{
				Window: 15 * time.Minute, MaxAttempts: 5, StandardBlockDuration: 15 * time.Minute,
				Level2Attempts: 15, Level2BlockDuration: time.Hour,
				Level3Attempts: 30, Level3BlockDuration: 24 * time.Hour,
			},
			BusinessHoursStart: 8,
			BusinessHoursEnd:   20,
			HistorySize:        20,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Interval:  15 * time.Second,
			Namespace: "mapengine",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		OpenTelemetry: OpenTelemetryConfig{
			Enabled:     true,
			ServiceName: "mapengine",
			Tracing:     TracingConfig{Enabled: true, SampleRate: 0.1},
			Metrics:     OTelMetricsConfig{Enabled: true, Interval: 15 * time.Second},
		},
		Telemetry: TelemetryConfig{
			Enabled:         true,
			ServiceName:     "mapengine",
			ServiceVersion:  "1.0.0",
			Environment:     "development",
			MetricsEnabled:  true,
			TracingEnabled:  true,
			OTLPEndpoint:    "localhost:4317",
			MetricsInterval: 30 * time.Second,
		},
	}
}

// Validate validates the configuration, delegating to the per-section
// validators in validation.go.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// LoadConfiguration loads configuration via viper, watching the config
// file for changes and refreshing Global on every edit.
func LoadConfiguration() *Config {
	def := DefaultConfig()
	viper.SetDefault("Server.Host", def.Server.Host)
	viper.SetDefault("Server.Port", def.Server.Port)
	viper.SetDefault("Server.ReadTimeout", def.Server.ReadTimeout.String())
	viper.SetDefault("Server.WriteTimeout", def.Server.WriteTimeout.String())
	viper.SetDefault("Server.ShutdownTimeout", def.Server.ShutdownTimeout.String())

	viper.SetDefault("Engine.EnableCache", def.Engine.EnableCache)
	viper.SetDefault("Engine.CacheSize", def.Engine.CacheSize)
	viper.SetDefault("Engine.DefaultTimeout", def.Engine.DefaultTimeout.String())
	viper.SetDefault("Engine.MaxConcurrency", def.Engine.MaxConcurrency)
	viper.SetDefault("Engine.MemoryThreshold", def.Engine.MemoryThreshold)
	viper.SetDefault("Engine.BatchSize", def.Engine.BatchSize)
	viper.SetDefault("Engine.StreamHighWaterMark", def.Engine.StreamHighWaterMark)
	viper.SetDefault("Engine.BackpressureThreshold", def.Engine.BackpressureThreshold)

	viper.SetDefault("Metrics.Enabled", def.Metrics.Enabled)
	viper.SetDefault("Metrics.Port", def.Metrics.Port)
	viper.SetDefault("Metrics.Path", def.Metrics.Path)
	viper.SetDefault("Metrics.Namespace", def.Metrics.Namespace)

	viper.SetDefault("Logging.Level", def.Logging.Level)
	viper.SetDefault("Logging.Format", def.Logging.Format)
	viper.SetDefault("Logging.Output", def.Logging.Output)

	viper.SetDefault("OpenTelemetry.Enabled", def.OpenTelemetry.Enabled)
	viper.SetDefault("OpenTelemetry.ServiceName", def.OpenTelemetry.ServiceName)
	viper.SetDefault("Telemetry.Enabled", def.Telemetry.Enabled)
	viper.SetDefault("Telemetry.ServiceName", def.Telemetry.ServiceName)

	viper.SetConfigName("mapengine.conf")
	viper.AddConfigPath("/etc/mapengine/")
	viper.AddConfigPath("$HOME/.mapengine")
	viper.AddConfigPath("./conf")
	if err := viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("no config file found, using defaults and environment")
	}

	viper.WatchConfig()
	viper.OnConfigChange(reloadConfig)

	cfg := DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		log.Error().Err(err).Msg("unable to decode configuration")
	}

	applyLogLevel(cfg)
	Global = cfg
	return cfg
}

func applyLogLevel(cfg *Config) {
	level := zerolog.InfoLevel
	switch cfg.Logging.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

func reloadConfig(e fsnotify.Event) {
	log.Info().Msgf("config file changed: %v", e.Name)
	cfg := DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		log.Error().Err(err).Msg("unable to decode configuration on reload")
		return
	}
	applyLogLevel(cfg)
	Global = cfg
}
