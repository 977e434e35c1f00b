package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/strata-data/mapengine/pkg/execution"
	"github.com/strata-data/mapengine/pkg/metrics"
	"github.com/strata-data/mapengine/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecProvider struct {
	snapshot execution.MetricsSnapshot
	resetHit bool
}

func (f *fakeExecProvider) GetMetrics() execution.MetricsSnapshot { return f.snapshot }
func (f *fakeExecProvider) ResetMetrics()                         { f.resetHit = true }

type fakePoolProvider struct {
	metrics map[string]pool.Metrics
}

func (f *fakePoolProvider) Metrics() map[string]pool.Metrics { return f.metrics }

func TestNewMetricsService(t *testing.T) {
	telemetryManager := &metrics.TelemetryManager{}
	service := NewMetricsService(telemetryManager, nil, nil)

	assert.NotNil(t, service)
	assert.Equal(t, telemetryManager, service.telemetry)
	assert.Equal(t, "1.0.0", service.version)
	assert.Equal(t, "healthy", service.healthStatus)
	assert.Equal(t, int64(0), service.requestCount)
	assert.Equal(t, int64(0), service.errorCount)
	assert.WithinDuration(t, time.Now(), service.startTime, time.Second)
}

func TestMetricsService_GetServiceMetrics(t *testing.T) {
	service := NewMetricsService(nil, nil, nil)
	service.requestCount = 100
	service.errorCount = 5
	service.lastRequest = time.Now().Add(-time.Minute)

	m := service.GetServiceMetrics()

	assert.Equal(t, "1.0.0", m.Version)
	assert.Equal(t, int64(100), m.RequestCount)
	assert.Equal(t, int64(5), m.ErrorCount)
	assert.Equal(t, "healthy", m.HealthStatus)
	assert.False(t, m.LastRequestTime.IsZero())
}

func TestMetricsService_GetExecutionMetrics_NoProviderReturnsZeroValue(t *testing.T) {
	service := NewMetricsService(nil, nil, nil)
	assert.Equal(t, execution.MetricsSnapshot{}, service.GetExecutionMetrics())
}

func TestMetricsService_GetExecutionMetrics_DelegatesToProvider(t *testing.T) {
	exec := &fakeExecProvider{snapshot: execution.MetricsSnapshot{ExecutionCount: 42, RecordsProcessed: 100}}
	service := NewMetricsService(nil, exec, nil)

	got := service.GetExecutionMetrics()
	assert.Equal(t, int64(42), got.ExecutionCount)
	assert.Equal(t, int64(100), got.RecordsProcessed)
}

func TestMetricsService_ResetExecutionMetrics_DelegatesToProvider(t *testing.T) {
	exec := &fakeExecProvider{}
	service := NewMetricsService(nil, exec, nil)

	service.ResetExecutionMetrics()
	assert.True(t, exec.resetHit)
}

func TestMetricsService_GetPoolMetrics_NoProviderReturnsEmptyMap(t *testing.T) {
	service := NewMetricsService(nil, nil, nil)
	assert.Empty(t, service.GetPoolMetrics())
}

func TestMetricsService_GetPoolMetrics_DelegatesToProvider(t *testing.T) {
	pools := &fakePoolProvider{metrics: map[string]pool.Metrics{"primary": {Acquired: 10, Errors: 1}}}
	service := NewMetricsService(nil, nil, pools)

	got := service.GetPoolMetrics()
	require.Contains(t, got, "primary")
	assert.Equal(t, int64(10), got["primary"].Acquired)
}

func TestMetricsService_RecordRequest(t *testing.T) {
	service := NewMetricsService(nil, nil, nil)
	initialCount := service.requestCount
	initialErrors := service.errorCount

	service.RecordRequest("GET", "/test", time.Millisecond*100, 200)
	assert.Equal(t, initialCount+1, service.requestCount)
	assert.Equal(t, initialErrors, service.errorCount)

	service.RecordRequest("POST", "/test", time.Millisecond*200, 500)
	assert.Equal(t, initialCount+2, service.requestCount)
	assert.Equal(t, initialErrors+1, service.errorCount)
}

func TestMetricsService_SetHealthStatus(t *testing.T) {
	service := NewMetricsService(nil, nil, nil)

	service.SetHealthStatus("unhealthy")
	assert.Equal(t, "unhealthy", service.healthStatus)
	assert.Equal(t, "unhealthy", service.GetServiceMetrics().HealthStatus)
}

func TestMetricsService_GetMetrics(t *testing.T) {
	exec := &fakeExecProvider{snapshot: execution.MetricsSnapshot{ExecutionCount: 7}}
	service := NewMetricsService(nil, exec, nil)
	service.requestCount = 50
	service.errorCount = 2

	response := service.GetMetrics()

	assert.WithinDuration(t, time.Now(), response.Timestamp, time.Second)
	assert.Equal(t, int64(50), response.Service.RequestCount)
	assert.Equal(t, int64(2), response.Service.ErrorCount)
	assert.Equal(t, int64(7), response.Execution.ExecutionCount)
}

func TestNewMetricsHandler(t *testing.T) {
	service := NewMetricsService(nil, nil, nil)
	handler := NewMetricsHandler(service)

	assert.NotNil(t, handler)
	assert.Equal(t, service, handler.metricsService)
}

func TestMetricsHandler_ServeHTTP_JSONFormat(t *testing.T) {
	service := NewMetricsService(nil, nil, nil)
	handler := NewMetricsHandler(service)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	var response MetricsResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.NotZero(t, response.Timestamp)
	assert.Equal(t, "1.0.0", response.Service.Version)
}

func TestMetricsHandler_ServeHTTP_PrometheusFormat(t *testing.T) {
	exec := &fakeExecProvider{snapshot: execution.MetricsSnapshot{ExecutionCount: 10, RecordsProcessed: 50}}
	pools := &fakePoolProvider{metrics: map[string]pool.Metrics{"primary": {Acquired: 5, Errors: 1}}}
	service := NewMetricsService(nil, exec, pools)
	service.requestCount = 100
	service.errorCount = 5
	handler := NewMetricsHandler(service)

	req := httptest.NewRequest("GET", "/metrics?format=prometheus", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; version=0.0.4; charset=utf-8", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "mapengine_requests_total 100")
	assert.Contains(t, body, "mapengine_errors_total 5")
	assert.Contains(t, body, "mapengine_executions_total 10")
	assert.Contains(t, body, "mapengine_records_processed_total 50")
	assert.Contains(t, body, `mapengine_pool_acquired_total{pool="primary"} 5`)
}

func TestMetricsHandler_ServeHTTP_InvalidMethod(t *testing.T) {
	service := NewMetricsService(nil, nil, nil)
	handler := NewMetricsHandler(service)

	req := httptest.NewRequest("PUT", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMetricsHandler_ServeHTTP_UnsupportedFormat(t *testing.T) {
	service := NewMetricsService(nil, nil, nil)
	handler := NewMetricsHandler(service)

	req := httptest.NewRequest("GET", "/metrics?format=xml", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Unsupported format")
}

func TestMetricsHandler_ServeHTTP_ResetEndpoint(t *testing.T) {
	exec := &fakeExecProvider{}
	service := NewMetricsService(nil, exec, nil)
	handler := NewMetricsHandler(service)

	req := httptest.NewRequest("POST", "/metrics/reset", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, exec.resetHit)
}

func TestNewMetricsMiddleware(t *testing.T) {
	service := NewMetricsService(nil, nil, nil)
	middleware := NewMetricsMiddleware(service)

	assert.NotNil(t, middleware)
	assert.Equal(t, service, middleware.metricsService)
}

func TestMetricsMiddleware_Middleware(t *testing.T) {
	service := NewMetricsService(nil, nil, nil)
	middleware := NewMetricsMiddleware(service)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test response"))
	})
	wrappedHandler := middleware.Middleware(testHandler)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	initialCount := service.requestCount
	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test response", w.Body.String())
	assert.Equal(t, initialCount+1, service.requestCount)
}

func TestMetricsMiddleware_MiddlewareWithError(t *testing.T) {
	service := NewMetricsService(nil, nil, nil)
	middleware := NewMetricsMiddleware(service)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("error response"))
	})
	wrappedHandler := middleware.Middleware(testHandler)

	req := httptest.NewRequest("POST", "/test-error", nil)
	w := httptest.NewRecorder()

	initialErrors := service.errorCount
	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, initialErrors+1, service.errorCount)
}

func TestResponseWriter(t *testing.T) {
	recorder := httptest.NewRecorder()
	wrapper := &responseWriter{
		ResponseWriter: recorder,
		statusCode:     http.StatusOK,
	}

	wrapper.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, wrapper.statusCode)
	assert.Equal(t, http.StatusCreated, recorder.Code)

	data := []byte("test data")
	n, err := wrapper.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, "test data", recorder.Body.String())
}

func TestMetricsIntegration(t *testing.T) {
	telemetryManager := &metrics.TelemetryManager{}
	service := NewMetricsService(telemetryManager, nil, nil)
	handler := NewMetricsHandler(service)
	middleware := NewMetricsMiddleware(service)

	appHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/metrics") {
			handler.ServeHTTP(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("app response"))
	})
	wrappedHandler := middleware.Middleware(appHandler)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/api/test", nil)
		w := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response MetricsResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.True(t, response.Service.RequestCount >= 6)
	assert.Equal(t, "1.0.0", response.Service.Version)
}

func BenchmarkMetricsHandler_JSON(b *testing.B) {
	service := NewMetricsService(nil, nil, nil)
	handler := NewMetricsHandler(service)

	req := httptest.NewRequest("GET", "/metrics", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}
}

func BenchmarkMetricsHandler_Prometheus(b *testing.B) {
	service := NewMetricsService(nil, nil, nil)
	handler := NewMetricsHandler(service)

	req := httptest.NewRequest("GET", "/metrics?format=prometheus", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}
}

func BenchmarkMetricsMiddleware(b *testing.B) {
	service := NewMetricsService(nil, nil, nil)
	middleware := NewMetricsMiddleware(service)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrappedHandler := middleware.Middleware(testHandler)

	req := httptest.NewRequest("GET", "/test", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(w, req)
	}
}
