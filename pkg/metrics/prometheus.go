package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/strata-data/mapengine/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewPrometheusReader creates the OTel-to-Prometheus bridge reader.
// Registering it with the meter provider means every instrument created
// through createInstruments is scraped in Prometheus exposition format
// via the global registry, without a second, hand-maintained metric set.
func NewPrometheusReader() (sdkmetric.Reader, error) {
	return otelprom.New()
}

// PrometheusServer exposes the engine's metrics in Prometheus exposition
// format. This is the teacher's "legacy fallback" surface, now backed by
// a real exporter rather than a placeholder handler.
type PrometheusServer struct {
	server *http.Server
}

// NewPrometheusServer builds a Prometheus server from the engine's
// top-level metrics configuration (port, path).
func NewPrometheusServer(cfg config.MetricsConfig) *PrometheusServer {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
	})

	mux.Handle(path, promhttp.Handler())

	return &PrometheusServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: mux,
		},
	}
}

// Start starts the Prometheus metrics server.
func (ps *PrometheusServer) Start() error {
	log.Info().
		Str("addr", ps.server.Addr).
		Msg("Starting Prometheus metrics server")

	return ps.server.ListenAndServe()
}

// Stop stops the Prometheus metrics server.
func (ps *PrometheusServer) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping Prometheus metrics server")
	return ps.server.Shutdown(ctx)
}
