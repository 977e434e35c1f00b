package metrics

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RecordHealthCheck records health check metrics (stub implementation)
func (tm *TelemetryManager) RecordHealthCheck(status string, duration time.Duration) {
	// TODO: Implement actual health check metrics recording
}

// RecordHTTPRequest records one served HTTP request's method, path and
// outcome against the http_requests_total counter and duration histogram.
func (tm *TelemetryManager) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if !tm.config.MetricsEnabled {
		return
	}

	ctx := context.Background()
	attributes := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", strconv.Itoa(statusCode)),
	}

	if counter, exists := tm.counters["http_requests_total"]; exists {
		counter.Add(ctx, 1, metric.WithAttributes(attributes...))
	}
	if hist, exists := tm.histograms["http_request_duration"]; exists {
		hist.Record(ctx, duration.Seconds(), metric.WithAttributes(attributes...))
	}
}

// RecordMetrics records arbitrary metrics (for backward compatibility)
func (tm *TelemetryManager) RecordMetrics(ctx context.Context, metrics map[string]interface{}) {
	// This method is kept for backward compatibility
	// In practice, specific metric recording methods should be preferred
}

// IncrementCounter increments a named counter (for backward compatibility)
func (tm *TelemetryManager) IncrementCounter(name string, value int64) {
	if !tm.config.MetricsEnabled {
		return
	}

	ctx := context.Background()
	if counter, exists := tm.counters[name]; exists {
		counter.Add(ctx, value)
	}
}

// SetGauge sets a gauge value (placeholder - gauges in this implementation are observable)
func (tm *TelemetryManager) SetGauge(name string, value float64, labels map[string]string) {
	// Observable gauges are updated via callbacks, not directly set
	// This method is kept for backward compatibility with existing code
}
