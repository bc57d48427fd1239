// Package observability provides Prometheus metrics for monitoring the
// application.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ptmscope/ptmscope/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Upload     *metrics.UploadMetrics
	Enrichment *metrics.EnrichmentMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors. It returns an error if any metric collector fails to register.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	uploadMetrics, err := metrics.NewUploadMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload metrics: %w", err)
	}

	enrichmentMetrics, err := metrics.NewEnrichmentMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create enrichment metrics: %w", err)
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:   registry,
		Upload:     uploadMetrics,
		Enrichment: enrichmentMetrics,
	}, nil
}

// Handler returns the HTTP handler serving the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
