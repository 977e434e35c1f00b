package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/strata-data/mapengine/pkg/config"
	"github.com/strata-data/mapengine/pkg/pool"
	"github.com/strata-data/mapengine/pkg/recovery"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TelemetryConfig is an alias to the config package TelemetryConfig for compatibility
type TelemetryConfig = config.TelemetryConfig

// TelemetryManager manages OpenTelemetry metrics and tracing for the
// engine facade: execution counts/durations, cache hit rate, pool
// health, circuit breaker state and rate-limit blocks.
type TelemetryManager struct {
	config         TelemetryConfig
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider trace.TracerProvider
	meter          metric.Meter
	tracer         trace.Tracer

	// Metrics instruments
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Float64ObservableGauge
	histograms map[string]metric.Float64Histogram

	// Per-mapping execution metrics, keyed by mapping id.
	mappingMetrics map[string]*MappingMetrics

	// Most recently observed circuit breaker state per resource, fed by
	// RecordBreakerState since the facade's breaker registry exposes no
	// enumeration of its own.
	breakerStates map[string]recovery.BreakerState

	mutex   sync.RWMutex
	started bool
}

// MappingMetrics is the point-in-time execution picture for one mapping.
type MappingMetrics struct {
	ExecutionCount       int64
	FailureCount         int64
	CacheHits            int64
	CacheMisses          int64
	AverageExecutionTime time.Duration
	LastExecuted         time.Time
}

// PoolCollector periodically samples a pool.Manager's per-pool metrics
// and feeds them into a TelemetryManager, the engine-domain analog of
// the teacher's per-stream metrics poller.
type PoolCollector struct {
	telemetry *TelemetryManager
	pools     *pool.Manager
	ticker    *time.Ticker
	stopChan  chan struct{}
	mutex     sync.Mutex
}

// NewTelemetryManager creates a new telemetry manager
func NewTelemetryManager(config TelemetryConfig) (*TelemetryManager, error) {
	log.Info().
		Bool("enabled", config.Enabled).
		Bool("metrics_enabled", config.MetricsEnabled).
		Bool("tracing_enabled", config.TracingEnabled).
		Str("otlp_endpoint", config.OTLPEndpoint).
		Str("service_name", config.ServiceName).
		Msg("Creating telemetry manager with config")

	tm := &TelemetryManager{
		config:         config,
		counters:       make(map[string]metric.Int64Counter),
		gauges:         make(map[string]metric.Float64ObservableGauge),
		histograms:     make(map[string]metric.Float64Histogram),
		mappingMetrics: make(map[string]*MappingMetrics),
		breakerStates:  make(map[string]recovery.BreakerState),
	}

	if err := tm.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	return tm, nil
}

// initialize sets up OpenTelemetry
func (tm *TelemetryManager) initialize() error {
	if !tm.config.Enabled {
		log.Info().Msg("Telemetry disabled")
		return nil
	}

	if tm.config.MetricsEnabled {
		if err := tm.setupMetrics(); err != nil {
			return fmt.Errorf("failed to setup metrics: %w", err)
		}
	}

	if tm.config.TracingEnabled {
		if err := tm.setupTracing(); err != nil {
			return fmt.Errorf("failed to setup tracing: %w", err)
		}
	}

	return tm.createInstruments()
}

// setupMetrics configures OpenTelemetry metrics with OTLP gRPC exporter
func (tm *TelemetryManager) setupMetrics() error {
	exporter, err := otlpmetricgrpc.New(
		context.Background(),
		otlpmetricgrpc.WithEndpoint(tm.config.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(), // Use insecure for local development
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
	}

	interval := tm.config.MetricsInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	reader := sdkmetric.NewPeriodicReader(
		exporter,
		sdkmetric.WithInterval(interval),
	)

	// The Prometheus bridge reader registers itself with the global
	// Prometheus registry so every instrument created below is scraped
	// in Prometheus exposition format by PrometheusServer, alongside the
	// OTLP push path above.
	promReader, err := NewPrometheusReader()
	if err != nil {
		return fmt.Errorf("failed to create Prometheus bridge reader: %w", err)
	}

	tm.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithReader(promReader),
		sdkmetric.WithResource(tm.createResource()),
	)

	otel.SetMeterProvider(tm.meterProvider)

	tm.meter = tm.meterProvider.Meter(
		tm.config.ServiceName,
		metric.WithInstrumentationVersion(tm.config.ServiceVersion),
	)

	log.Info().
		Str("otlp_endpoint", tm.config.OTLPEndpoint).
		Dur("metrics_interval", interval).
		Msg("OpenTelemetry metrics configured with OTLP gRPC exporter and Prometheus bridge")

	return nil
}

// setupTracing configures OpenTelemetry tracing
func (tm *TelemetryManager) setupTracing() error {
	// For now, use a no-op tracer. In production this would configure a
	// real tracer with exporters.
	tm.tracerProvider = trace.NewNoopTracerProvider()
	otel.SetTracerProvider(tm.tracerProvider)

	tm.tracer = tm.tracerProvider.Tracer(
		tm.config.ServiceName,
		trace.WithInstrumentationVersion(tm.config.ServiceVersion),
	)

	return nil
}

// createResource creates an OpenTelemetry resource
func (tm *TelemetryManager) createResource() *resource.Resource {
	attributes := []attribute.KeyValue{
		attribute.String("service.name", tm.config.ServiceName),
		attribute.String("service.version", tm.config.ServiceVersion),
		attribute.String("environment", tm.config.Environment),
	}

	for key, value := range tm.config.Labels {
		attributes = append(attributes, attribute.String(key, value))
	}

	return resource.NewWithAttributes(
		semconv.SchemaURL,
		attributes...,
	)
}

// createInstruments creates all the metric instruments
func (tm *TelemetryManager) createInstruments() error {
	if !tm.config.MetricsEnabled || tm.meter == nil {
		return nil
	}

	var err error

	tm.counters["mapping_executions_total"], err = tm.meter.Int64Counter(
		"mapengine_mapping_executions_total",
		metric.WithDescription("Total number of mapping executions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create mapping_executions_total counter: %w", err)
	}

	tm.counters["mapping_executions_failed_total"], err = tm.meter.Int64Counter(
		"mapengine_mapping_executions_failed_total",
		metric.WithDescription("Total number of mapping executions that failed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create mapping_executions_failed_total counter: %w", err)
	}

	tm.counters["records_processed_total"], err = tm.meter.Int64Counter(
		"mapengine_records_processed_total",
		metric.WithDescription("Total number of records processed across all mappings"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create records_processed_total counter: %w", err)
	}

	tm.counters["cache_hits_total"], err = tm.meter.Int64Counter(
		"mapengine_cache_hits_total",
		metric.WithDescription("Total number of result cache hits"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache_hits_total counter: %w", err)
	}

	tm.counters["cache_misses_total"], err = tm.meter.Int64Counter(
		"mapengine_cache_misses_total",
		metric.WithDescription("Total number of result cache misses"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache_misses_total counter: %w", err)
	}

	tm.counters["pool_errors_total"], err = tm.meter.Int64Counter(
		"mapengine_pool_errors_total",
		metric.WithDescription("Total number of connection pool errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create pool_errors_total counter: %w", err)
	}

	tm.counters["pool_timeouts_total"], err = tm.meter.Int64Counter(
		"mapengine_pool_timeouts_total",
		metric.WithDescription("Total number of connection pool acquire timeouts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create pool_timeouts_total counter: %w", err)
	}

	tm.counters["ratelimit_blocked_total"], err = tm.meter.Int64Counter(
		"mapengine_ratelimit_blocked_total",
		metric.WithDescription("Total number of requests blocked by the brute-force rate limiter"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create ratelimit_blocked_total counter: %w", err)
	}

	tm.histograms["execution_duration"], err = tm.meter.Float64Histogram(
		"mapengine_execution_duration_seconds",
		metric.WithDescription("Mapping execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create execution_duration histogram: %w", err)
	}

	tm.counters["http_requests_total"], err = tm.meter.Int64Counter(
		"mapengine_http_requests_total",
		metric.WithDescription("Total number of HTTP requests served by the API collaborator"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	tm.histograms["http_request_duration"], err = tm.meter.Float64Histogram(
		"mapengine_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	tm.gauges["active_mappings"], err = tm.meter.Float64ObservableGauge(
		"mapengine_active_mappings",
		metric.WithDescription("Number of mappings with recorded execution metrics"),
		metric.WithUnit("1"),
		metric.WithFloat64Callback(tm.getActiveMappingsCount),
	)
	if err != nil {
		return fmt.Errorf("failed to create active_mappings gauge: %w", err)
	}

	tm.gauges["open_circuit_breakers"], err = tm.meter.Float64ObservableGauge(
		"mapengine_open_circuit_breakers",
		metric.WithDescription("Number of circuit breakers currently open"),
		metric.WithUnit("1"),
		metric.WithFloat64Callback(tm.getOpenBreakersCount),
	)
	if err != nil {
		return fmt.Errorf("failed to create open_circuit_breakers gauge: %w", err)
	}

	return nil
}

// Start starts the telemetry manager
func (tm *TelemetryManager) Start(ctx context.Context) error {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if tm.started {
		return fmt.Errorf("telemetry manager already started")
	}

	if !tm.config.Enabled {
		log.Info().Msg("Telemetry disabled, skipping start")
		return nil
	}

	tm.started = true
	log.Info().Msg("Telemetry manager started")
	return nil
}

// Stop stops the telemetry manager
func (tm *TelemetryManager) Stop(ctx context.Context) error {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if !tm.started {
		return nil
	}

	if tm.meterProvider != nil {
		if err := tm.meterProvider.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown meter provider")
		}
	}

	tm.started = false
	log.Info().Msg("Telemetry manager stopped")
	return nil
}

// RecordExecution records metrics for one mapping execution.
func (tm *TelemetryManager) RecordExecution(ctx context.Context, mappingID string, duration time.Duration, recordsProcessed int, success, cacheHit bool) {
	if !tm.config.Enabled {
		return
	}
	tm.updateMappingMetrics(mappingID, duration, recordsProcessed, success, cacheHit)

	if !tm.config.MetricsEnabled {
		return
	}

	attributes := []attribute.KeyValue{
		attribute.String("mapping_id", mappingID),
		attribute.Bool("success", success),
	}

	tm.counters["mapping_executions_total"].Add(ctx, 1, metric.WithAttributes(attributes...))
	if !success {
		tm.counters["mapping_executions_failed_total"].Add(ctx, 1, metric.WithAttributes(attributes...))
	}
	tm.counters["records_processed_total"].Add(ctx, int64(recordsProcessed), metric.WithAttributes(
		attribute.String("mapping_id", mappingID),
	))
	tm.histograms["execution_duration"].Record(ctx, duration.Seconds(), metric.WithAttributes(attributes...))

	if cacheHit {
		tm.counters["cache_hits_total"].Add(ctx, 1, metric.WithAttributes(attribute.String("mapping_id", mappingID)))
	} else {
		tm.counters["cache_misses_total"].Add(ctx, 1, metric.WithAttributes(attribute.String("mapping_id", mappingID)))
	}
}

// RecordPoolError records a connection pool error or acquire timeout.
func (tm *TelemetryManager) RecordPoolError(ctx context.Context, poolName string, timeout bool) {
	if !tm.config.MetricsEnabled {
		return
	}
	attributes := []attribute.KeyValue{attribute.String("pool", poolName)}
	if timeout {
		tm.counters["pool_timeouts_total"].Add(ctx, 1, metric.WithAttributes(attributes...))
		return
	}
	tm.counters["pool_errors_total"].Add(ctx, 1, metric.WithAttributes(attributes...))
}

// RecordRateLimitBlock records one request blocked by the brute-force
// rate limiter, tagged with the tier that blocked it (ip/account/ip_account).
func (tm *TelemetryManager) RecordRateLimitBlock(ctx context.Context, reason string) {
	if !tm.config.MetricsEnabled {
		return
	}
	tm.counters["ratelimit_blocked_total"].Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordBreakerState records the most recently observed state of a
// named circuit breaker, surfaced by the open_circuit_breakers gauge.
func (tm *TelemetryManager) RecordBreakerState(resource string, state recovery.BreakerState) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	tm.breakerStates[resource] = state
}

func (tm *TelemetryManager) updateMappingMetrics(mappingID string, duration time.Duration, recordsProcessed int, success, cacheHit bool) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	mm, ok := tm.mappingMetrics[mappingID]
	if !ok {
		mm = &MappingMetrics{}
		tm.mappingMetrics[mappingID] = mm
	}

	mm.ExecutionCount++
	if !success {
		mm.FailureCount++
	}
	if cacheHit {
		mm.CacheHits++
	} else {
		mm.CacheMisses++
	}
	mm.LastExecuted = time.Now()
	if mm.ExecutionCount == 1 {
		mm.AverageExecutionTime = duration
	} else {
		total := mm.AverageExecutionTime*time.Duration(mm.ExecutionCount-1) + duration
		mm.AverageExecutionTime = total / time.Duration(mm.ExecutionCount)
	}
}

// GetMappingMetrics returns the recorded metrics for a single mapping.
func (tm *TelemetryManager) GetMappingMetrics(mappingID string) (*MappingMetrics, bool) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	mm, exists := tm.mappingMetrics[mappingID]
	if !exists {
		return nil, false
	}
	metricsCopy := *mm
	return &metricsCopy, true
}

// GetAllMappingMetrics returns a snapshot of every mapping's recorded metrics.
func (tm *TelemetryManager) GetAllMappingMetrics() map[string]MappingMetrics {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	result := make(map[string]MappingMetrics, len(tm.mappingMetrics))
	for id, mm := range tm.mappingMetrics {
		result[id] = *mm
	}
	return result
}

// StartTrace starts a new trace span
func (tm *TelemetryManager) StartTrace(ctx context.Context, operationName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	if !tm.config.TracingEnabled || tm.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return tm.tracer.Start(ctx, operationName, trace.WithAttributes(attributes...))
}

func (tm *TelemetryManager) getActiveMappingsCount(ctx context.Context, observer metric.Float64Observer) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	tm.mutex.RLock()
	count := float64(len(tm.mappingMetrics))
	tm.mutex.RUnlock()

	observer.Observe(count)
	return nil
}

func (tm *TelemetryManager) getOpenBreakersCount(ctx context.Context, observer metric.Float64Observer) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	tm.mutex.RLock()
	var open float64
	for _, state := range tm.breakerStates {
		if state == recovery.BreakerOpen {
			open++
		}
	}
	tm.mutex.RUnlock()

	observer.Observe(open)
	return nil
}

// NewPoolCollector creates a collector that periodically samples pools'
// metrics into telemetry's pool_errors/pool_timeouts counters.
func NewPoolCollector(telemetry *TelemetryManager, pools *pool.Manager) *PoolCollector {
	return &PoolCollector{
		telemetry: telemetry,
		pools:     pools,
		stopChan:  make(chan struct{}),
	}
}

// Start begins periodic sampling at the given interval.
func (pc *PoolCollector) Start(ctx context.Context, interval time.Duration) error {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	if pc.ticker != nil {
		return fmt.Errorf("pool collector already started")
	}

	pc.ticker = time.NewTicker(interval)
	go pc.collectLoop(ctx)

	log.Info().Dur("interval", interval).Msg("Pool metrics collector started")
	return nil
}

// Stop halts periodic sampling.
func (pc *PoolCollector) Stop() error {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	if pc.ticker == nil {
		return nil
	}

	pc.ticker.Stop()
	close(pc.stopChan)
	pc.ticker = nil

	log.Info().Msg("Pool metrics collector stopped")
	return nil
}

func (pc *PoolCollector) collectLoop(ctx context.Context) {
	for {
		select {
		case <-pc.ticker.C:
			pc.collect(ctx)
		case <-pc.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (pc *PoolCollector) collect(ctx context.Context) {
	snapshot := pc.pools.Metrics()
	for name, m := range snapshot {
		if m.Errors > 0 {
			pc.telemetry.RecordPoolError(ctx, name, false)
		}
		if m.Timeouts > 0 {
			pc.telemetry.RecordPoolError(ctx, name, true)
		}
	}
}

// DefaultTelemetryConfig returns a default telemetry configuration
func DefaultTelemetryConfig() TelemetryConfig {
	return config.DefaultConfig().Telemetry
}
