package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/strata-data/mapengine/pkg/api"
	"github.com/strata-data/mapengine/pkg/config"
	"github.com/strata-data/mapengine/pkg/facade"
	"github.com/strata-data/mapengine/pkg/metrics"
	"github.com/strata-data/mapengine/pkg/pool"
	"github.com/strata-data/mapengine/pkg/ratelimit"
	"github.com/strata-data/mapengine/pkg/recovery"
	"github.com/rs/zerolog/log"
	"github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file path")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("mapengine %s (commit %s, built %s)\n", version, commit, date)
		os.Exit(0)
	}

	cfg, err := loadConfiguration(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	accessLog := logrus.New()
	accessLog.SetFormatter(&logrus.JSONFormatter{})

	if err := run(cfg, accessLog); err != nil {
		log.Fatal().Err(err).Msg("mapengine exited with error")
	}
}

func loadConfiguration(configFile string) (*config.Config, error) {
	if configFile == "" {
		if envConfigFile := os.Getenv("MAPENGINE_CONFIG_FILE"); envConfigFile != "" {
			configFile = envConfigFile
		}
	}

	if configFile != "" {
		loader := config.NewLoader()
		cfg, err := loader.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configFile, err)
		}
		config.SetConfig(cfg)
		return cfg, nil
	}

	return config.LoadConfiguration(), nil
}

func run(cfg *config.Config, accessLog *logrus.Logger) error {
	pools, err := buildPools(cfg)
	if err != nil {
		return fmt.Errorf("building connection pools: %w", err)
	}

	telemetry, err := metrics.NewTelemetryManager(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("creating telemetry manager: %w", err)
	}

	startCtx := context.Background()
	if err := telemetry.Start(startCtx); err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}
	defer telemetry.Stop(startCtx)

	poolCollector := metrics.NewPoolCollector(telemetry, pools)
	if err := poolCollector.Start(startCtx, 15*time.Second); err != nil {
		return fmt.Errorf("starting pool collector: %w", err)
	}
	defer poolCollector.Stop()

	limiter := ratelimit.NewManager(ratelimit.ManagerOptions{
		IP:                    tierOptions(cfg.RateLimit.IP),
		Account:               tierOptions(cfg.RateLimit.Account),
		IPAccount:             tierOptions(cfg.RateLimit.IPAccount),
		SuspiciousIdentifiers: cfg.RateLimit.SuspiciousIdentifiers,
		SuspiciousUserAgents:  cfg.RateLimit.SuspiciousUserAgents,
		BusinessHoursStart:    cfg.RateLimit.BusinessHoursStart,
		BusinessHoursEnd:      cfg.RateLimit.BusinessHoursEnd,
		HistorySize:           cfg.RateLimit.HistorySize,
	})
	for _, subject := range cfg.RateLimit.Whitelist {
		limiter.Whitelist(subject)
	}
	engine := facade.NewEngine(facade.EngineOptions{
		Pools:              pools,
		EnableResultCache:  cfg.Engine.EnableCache,
		ResultCacheSize:    cfg.Engine.CacheSize,
		EnableOptimizer:    cfg.Engine.EnablePerformanceOptimization,
		DeadLetterCapacity: cfg.Engine.RollbackHistorySize,
		BreakerOptions: recovery.BreakerOptions{
			Window:           cfg.Engine.CircuitBreaker.Window,
			FailureThreshold: cfg.Engine.CircuitBreaker.FailureThreshold,
			VolumeThreshold:  cfg.Engine.CircuitBreaker.VolumeThreshold,
			SuccessThreshold: cfg.Engine.CircuitBreaker.SuccessThreshold,
			Cooldown:         cfg.Engine.CircuitBreaker.Cooldown,
		},
		OnDeadLetter: func(entry recovery.DeadLetterEntry) {
			log.Warn().Str("stage", entry.Stage).Err(entry.Err).Msg("dead letter queue full, entry dropped")
		},
	})

	mappingStore := api.NewDefaultMappingStore()

	serverCfg := api.DefaultServerConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	serverCfg.EnableMetrics = cfg.Metrics.Enabled

	server, err := api.NewServer(cfg, serverCfg, telemetry, engine, pools, mappingStore, limiter, accessLog)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	promServer := metrics.NewPrometheusServer(cfg.Metrics)

	manager := api.NewServerManager()
	manager.AddServer("api", server)

	go func() {
		log.Info().Str("addr", server.GetAddr()).Msg("mapengine API server starting")
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	}()

	go func() {
		log.Info().Int("port", cfg.Metrics.Port).Msg("prometheus metrics server starting")
		if err := promServer.Start(); err != nil {
			log.Error().Err(err).Msg("prometheus server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping API server")
	}
	if err := promServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping prometheus server")
	}
	pools.Shutdown()

	return nil
}

func tierOptions(tier config.RateLimitTierConfig) ratelimit.TierOptions {
	return ratelimit.TierOptions{
		Window:                 tier.Window,
		MaxAttempts:            tier.MaxAttempts,
		StandardBlockDuration:  tier.StandardBlockDuration,
		Level2Attempts:         tier.Level2Attempts,
		Level2BlockDuration:    tier.Level2BlockDuration,
		Level3Attempts:         tier.Level3Attempts,
		Level3BlockDuration:    tier.Level3BlockDuration,
		PermanentLockThreshold: tier.PermanentLockThreshold,
	}
}

func buildPools(cfg *config.Config) (*pool.Manager, error) {
	manager := pool.NewManager()

	for _, pc := range cfg.Pools {
		opts := pool.Options{
			Min:            pc.Min,
			Max:            pc.Max,
			AcquireTimeout: pc.AcquireTimeout,
			IdleTimeout:    pc.IdleTimeout,
			HealthCheck:    pc.HealthCheckInterval,
		}

		var factory pool.Factory
		switch pc.Type {
		case config.PoolTypeMySQL:
			factory = pool.MySQLFactory(pc.DSN)
		case config.PoolTypeMongo:
			factory = pool.MongoFactory(pc.DSN)
		case config.PoolTypeElasticsearch:
			factory = pool.ElasticsearchFactory([]string{pc.DSN})
		default:
			return nil, fmt.Errorf("pool %q: unsupported pool type %q", pc.Name, pc.Type)
		}

		if err := manager.CreatePool(pc.Name, factory, opts); err != nil {
			return nil, fmt.Errorf("pool %q: %w", pc.Name, err)
		}
	}

	return manager, nil
}
