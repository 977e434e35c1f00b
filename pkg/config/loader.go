package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Loader loads and validates configuration from files and environment
// variables, independent of the viper-backed hot-reload path in
// LoadConfiguration.
type Loader struct {
	validator *validator.Validate
}

// NewLoader creates a Loader with a fresh validator instance.
func NewLoader() *Loader {
	return &Loader{validator: validator.New()}
}

// LoaderOptions controls one Load call.
type LoaderOptions struct {
	EnvPrefix    string
	DefaultPaths []string
	RequireFile  bool
}

// LoadFromFile reads a YAML or JSON config file by extension.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()
	return l.loadFromReader(f, filepath.Ext(path))
}

func (l *Loader) loadFromReader(f *os.File, ext string) (*Config, error) {
	cfg := DefaultConfig()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decoding yaml config: %w", err)
		}
	case ".json":
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decoding json config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s", ext)
	}
	return cfg, nil
}

// Load resolves a config file from an env-var override, then a list of
// default paths, falling back to DefaultConfig(); it then applies
// environment overrides and validates the result.
func (l *Loader) Load(opts LoaderOptions) (*Config, error) {
	var cfg *Config

	if envPath := os.Getenv(opts.EnvPrefix + "CONFIG_FILE"); envPath != "" {
		loaded, err := l.LoadFromFile(envPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		for _, p := range opts.DefaultPaths {
			if _, err := os.Stat(p); err == nil {
				loaded, err := l.LoadFromFile(p)
				if err != nil {
					return nil, err
				}
				cfg = loaded
				break
			}
		}
	}

	if cfg == nil {
		if opts.RequireFile {
			return nil, fmt.Errorf("no config file found in %v", opts.DefaultPaths)
		}
		cfg = DefaultConfig()
	}

	l.loadFromEnvironment(cfg, opts.EnvPrefix)

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads with the engine's standard env prefix and search
// paths.
func (l *Loader) LoadDefault() (*Config, error) {
	return l.Load(LoaderOptions{
		EnvPrefix: "MAPENGINE_",
		DefaultPaths: []string{
			"/etc/mapengine/config.yaml",
			"/etc/mapengine/config.yml",
			"./conf/config.yaml",
			"./config.yaml",
		},
	})
}

func (l *Loader) loadFromEnvironment(cfg *Config, prefix string) {
	if v := os.Getenv(prefix + "SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv(prefix + "SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv(prefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(prefix + "METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv(prefix + "METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv(prefix + "MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxConcurrency = n
		}
	}
	if v := os.Getenv(prefix + "DEFAULT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.DefaultTimeout = d
		}
	}
	l.loadPoolEnvironmentVariables(cfg, prefix)
}

// loadPoolEnvironmentVariables overlays a DSN for each already-declared
// pool from POOL_<NAME>_DSN, letting deployments keep connection
// secrets out of the config file.
func (l *Loader) loadPoolEnvironmentVariables(cfg *Config, prefix string) {
	for i := range cfg.Pools {
		key := prefix + "POOL_" + strings.ToUpper(cfg.Pools[i].Name) + "_DSN"
		if v := os.Getenv(key); v != "" {
			cfg.Pools[i].DSN = v
		}
	}
}

// Validate runs struct-tag validation followed by the engine's custom
// cross-field rules.
func (l *Loader) Validate(cfg *Config) error {
	if err := l.validator.Struct(cfg); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); !ok {
			return formatValidationErrors(err)
		}
	}
	return validateCustomRules(cfg)
}

func formatValidationErrors(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

// SaveToFile writes cfg as YAML or JSON by the target extension.
func (l *Loader) SaveToFile(cfg *Config, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	case ".json":
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	default:
		return fmt.Errorf("unsupported config file extension: %s", filepath.Ext(path))
	}
}

// GenerateTemplate returns an example configuration covering a MySQL and
// an Elasticsearch pool (no MongoDB pool) and all three rate-limit tiers, for operators bootstrapping
// a new deployment.
func GenerateTemplate() *Config {
	cfg := DefaultConfig()
	cfg.Pools = []PoolConfig{
		{
			Name: "primary-mysql", Type: PoolTypeMySQL,
			DSN: "user:password@tcp(127.0.0.1:3306)/appdb",
			Min: 2, Max: 20, AcquireTimeout: 5 * time.Second, IdleTimeout: 5 * time.Minute,
			HealthCheckInterval: 30 * time.Second,
		},
		{
			Name: "search", Type: PoolTypeElasticsearch,
			DSN: "http://127.0.0.1:9200",
			Min: 1, Max: 10, AcquireTimeout: 5 * time.Second, IdleTimeout: 5 * time.Minute,
			HealthCheckInterval: 30 * time.Second,
		},
	}
	cfg.RateLimit.Whitelist = []string{"127.0.0.1"}
	cfg.RateLimit.SuspiciousUserAgents = []string{"(?i)bot", "(?i)curl"}
	return cfg
}
