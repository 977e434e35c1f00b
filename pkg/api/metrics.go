package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/strata-data/mapengine/pkg/execution"
	"github.com/strata-data/mapengine/pkg/metrics"
	"github.com/strata-data/mapengine/pkg/pool"
	"github.com/rs/zerolog/log"
)

// MetricsResponse represents the metrics API response
type MetricsResponse struct {
	Timestamp time.Time                 `json:"timestamp"`
	Service   ServiceMetrics            `json:"service"`
	Execution execution.MetricsSnapshot `json:"execution"`
	Pools     map[string]pool.Metrics   `json:"pools"`
	System    SystemMetrics             `json:"system"`
}

// ServiceMetrics represents service-level metrics
type ServiceMetrics struct {
	Uptime          string    `json:"uptime"`
	Version         string    `json:"version"`
	RequestCount    int64     `json:"request_count"`
	ErrorCount      int64     `json:"error_count"`
	AverageLatency  string    `json:"average_latency"`
	LastRequestTime time.Time `json:"last_request_time,omitempty"`
	HealthStatus    string    `json:"health_status"`
}

// SystemMetrics represents system-level metrics
type SystemMetrics struct {
	MemoryUsageMB   int64   `json:"memory_usage_mb"`
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
	GoroutineCount  int     `json:"goroutine_count"`
	GCPauseMs       float64 `json:"gc_pause_ms"`
}

// ExecutionMetricsProvider is implemented by pkg/facade.Engine.
type ExecutionMetricsProvider interface {
	GetMetrics() execution.MetricsSnapshot
	ResetMetrics()
}

// PoolMetricsProvider is implemented by pkg/pool.Manager.
type PoolMetricsProvider interface {
	Metrics() map[string]pool.Metrics
}

// MetricsCollector defines the interface for collecting metrics
type MetricsCollector interface {
	GetServiceMetrics() ServiceMetrics
	GetSystemMetrics() SystemMetrics
	GetExecutionMetrics() execution.MetricsSnapshot
	GetPoolMetrics() map[string]pool.Metrics
	RecordRequest(method, path string, duration time.Duration, statusCode int)
}

// MetricsService manages metrics collection and reporting
type MetricsService struct {
	telemetry    *metrics.TelemetryManager
	execProvider ExecutionMetricsProvider
	poolProvider PoolMetricsProvider
	startTime    time.Time
	version      string
	requestCount int64
	errorCount   int64
	lastRequest  time.Time
	healthStatus string
}

// NewMetricsService creates a new metrics service backed by the engine
// facade's execution metrics and the pool manager's per-pool metrics.
func NewMetricsService(telemetry *metrics.TelemetryManager, execProvider ExecutionMetricsProvider, poolProvider PoolMetricsProvider) *MetricsService {
	return &MetricsService{
		telemetry:    telemetry,
		execProvider: execProvider,
		poolProvider: poolProvider,
		startTime:    time.Now(),
		version:      "1.0.0",
		healthStatus: "healthy",
	}
}

// GetServiceMetrics returns service-level metrics
func (m *MetricsService) GetServiceMetrics() ServiceMetrics {
	return ServiceMetrics{
		Uptime:          time.Since(m.startTime).String(),
		Version:         m.version,
		RequestCount:    m.requestCount,
		ErrorCount:      m.errorCount,
		LastRequestTime: m.lastRequest,
		HealthStatus:    m.healthStatus,
	}
}

// GetSystemMetrics returns system-level metrics
func (m *MetricsService) GetSystemMetrics() SystemMetrics {
	return SystemMetrics{
		MemoryUsageMB:   0,
		CPUUsagePercent: 0,
		GoroutineCount:  0,
		GCPauseMs:       0,
	}
}

// GetExecutionMetrics returns the engine facade's lifetime execution
// counters, or a zero value when no provider is wired.
func (m *MetricsService) GetExecutionMetrics() execution.MetricsSnapshot {
	if m.execProvider == nil {
		return execution.MetricsSnapshot{}
	}
	return m.execProvider.GetMetrics()
}

// GetPoolMetrics returns per-pool connection metrics, or an empty map
// when no provider is wired.
func (m *MetricsService) GetPoolMetrics() map[string]pool.Metrics {
	if m.poolProvider == nil {
		return map[string]pool.Metrics{}
	}
	return m.poolProvider.Metrics()
}

// ResetExecutionMetrics resets the engine facade's execution counters.
func (m *MetricsService) ResetExecutionMetrics() {
	if m.execProvider != nil {
		m.execProvider.ResetMetrics()
	}
}

// RecordRequest records metrics for an HTTP request
func (m *MetricsService) RecordRequest(method, path string, duration time.Duration, statusCode int) {
	m.requestCount++
	m.lastRequest = time.Now()

	if statusCode >= 400 {
		m.errorCount++
	}

	if m.telemetry != nil {
		m.telemetry.RecordHTTPRequest(method, path, statusCode, duration)
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status_code", statusCode).
		Dur("duration", duration).
		Msg("HTTP request recorded")
}

// SetHealthStatus updates the health status
func (m *MetricsService) SetHealthStatus(status string) {
	m.healthStatus = status
}

// GetMetrics returns all metrics in a structured format
func (m *MetricsService) GetMetrics() MetricsResponse {
	return MetricsResponse{
		Timestamp: time.Now(),
		Service:   m.GetServiceMetrics(),
		Execution: m.GetExecutionMetrics(),
		Pools:     m.GetPoolMetrics(),
		System:    m.GetSystemMetrics(),
	}
}

// MetricsHandler handles HTTP metrics requests
type MetricsHandler struct {
	metricsService *MetricsService
}

// NewMetricsHandler creates a new metrics HTTP handler
func NewMetricsHandler(metricsService *MetricsService) *MetricsHandler {
	return &MetricsHandler{
		metricsService: metricsService,
	}
}

// ServeHTTP implements the http.Handler interface for metrics
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/reset") {
		h.metricsService.ResetExecutionMetrics()
		h.recordAndRespond(w, r, http.StatusNoContent, startTime)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodGet {
		h.recordAndRespond(w, r, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := r.URL.Query().Get("format")

	switch format {
	case "prometheus":
		h.servePrometheusMetrics(w, r, startTime)
	case "json", "":
		h.serveJSONMetrics(w, r, startTime)
	default:
		h.recordAndRespond(w, r, http.StatusBadRequest, startTime)
		http.Error(w, "Unsupported format. Use 'json' or 'prometheus'", http.StatusBadRequest)
		return
	}
}

// serveJSONMetrics serves metrics in JSON format
func (h *MetricsHandler) serveJSONMetrics(w http.ResponseWriter, r *http.Request, startTime time.Time) {
	metricsResponse := h.metricsService.GetMetrics()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(metricsResponse); err != nil {
		log.Error().Err(err).Msg("Failed to encode metrics response")
		h.recordAndRespond(w, r, http.StatusInternalServerError, startTime)
		return
	}

	h.recordAndRespond(w, r, http.StatusOK, startTime)
}

// servePrometheusMetrics serves metrics in Prometheus format
func (h *MetricsHandler) servePrometheusMetrics(w http.ResponseWriter, r *http.Request, startTime time.Time) {
	serviceMetrics := h.metricsService.GetServiceMetrics()
	execMetrics := h.metricsService.GetExecutionMetrics()
	poolMetrics := h.metricsService.GetPoolMetrics()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	prometheusData := h.generatePrometheusFormat(serviceMetrics, execMetrics, poolMetrics)

	if _, err := w.Write([]byte(prometheusData)); err != nil {
		log.Error().Err(err).Msg("Failed to write Prometheus metrics")
		h.recordAndRespond(w, r, http.StatusInternalServerError, startTime)
		return
	}

	h.recordAndRespond(w, r, http.StatusOK, startTime)
}

// generatePrometheusFormat converts metrics to Prometheus exposition
// format. pkg/metrics.PrometheusServer owns the real registry-backed
// exporter; this text path exists for lightweight scrape targets that
// hit the API metrics endpoint directly.
func (h *MetricsHandler) generatePrometheusFormat(service ServiceMetrics, exec execution.MetricsSnapshot, pools map[string]pool.Metrics) string {
	var out string

	out += "# HELP mapengine_requests_total Total number of HTTP requests\n"
	out += "# TYPE mapengine_requests_total counter\n"
	out += "mapengine_requests_total " + strconv.FormatInt(service.RequestCount, 10) + "\n\n"

	out += "# HELP mapengine_errors_total Total number of HTTP errors\n"
	out += "# TYPE mapengine_errors_total counter\n"
	out += "mapengine_errors_total " + strconv.FormatInt(service.ErrorCount, 10) + "\n\n"

	out += "# HELP mapengine_executions_total Total number of mapping executions\n"
	out += "# TYPE mapengine_executions_total counter\n"
	out += "mapengine_executions_total " + strconv.FormatInt(exec.ExecutionCount, 10) + "\n\n"

	out += "# HELP mapengine_records_processed_total Total records processed\n"
	out += "# TYPE mapengine_records_processed_total counter\n"
	out += "mapengine_records_processed_total " + strconv.FormatInt(exec.RecordsProcessed, 10) + "\n\n"

	out += "# HELP mapengine_error_rate Fraction of processed records that failed\n"
	out += "# TYPE mapengine_error_rate gauge\n"
	out += "mapengine_error_rate " + strconv.FormatFloat(exec.ErrorRate, 'f', 4, 64) + "\n\n"

	for name, pm := range pools {
		out += "# HELP mapengine_pool_acquired_total Total connections acquired from a pool\n"
		out += "# TYPE mapengine_pool_acquired_total counter\n"
		out += "mapengine_pool_acquired_total{pool=\"" + name + "\"} " + strconv.FormatInt(pm.Acquired, 10) + "\n\n"

		out += "# HELP mapengine_pool_errors_total Total pool errors\n"
		out += "# TYPE mapengine_pool_errors_total counter\n"
		out += "mapengine_pool_errors_total{pool=\"" + name + "\"} " + strconv.FormatInt(pm.Errors, 10) + "\n\n"
	}

	return out
}

// recordAndRespond records the request and response metrics
func (h *MetricsHandler) recordAndRespond(w http.ResponseWriter, r *http.Request, statusCode int, startTime time.Time) {
	duration := time.Since(startTime)
	h.metricsService.RecordRequest(r.Method, r.URL.Path, duration, statusCode)
}

// MetricsMiddleware provides HTTP request metrics middleware
type MetricsMiddleware struct {
	metricsService *MetricsService
}

// NewMetricsMiddleware creates a new metrics middleware
func NewMetricsMiddleware(metricsService *MetricsService) *MetricsMiddleware {
	return &MetricsMiddleware{
		metricsService: metricsService,
	}
}

// Middleware returns an HTTP middleware function
func (m *MetricsMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		wrapper := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(startTime)
		m.metricsService.RecordRequest(r.Method, r.URL.Path, duration, wrapper.statusCode)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write forwards to the wrapped writer; statusCode keeps its initial
// value when WriteHeader is never called
func (rw *responseWriter) Write(b []byte) (int, error) {
	return rw.ResponseWriter.Write(b)
}
