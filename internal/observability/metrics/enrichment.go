package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EnrichmentMetrics contains Prometheus metrics for reference API enrichment
type EnrichmentMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheHitsTotal    prometheus.Counter
	cacheMissesTotal  prometheus.Counter

	collectors []prometheus.Collector
}

// NewEnrichmentMetrics creates and registers new enrichment metrics
func NewEnrichmentMetrics(registry *prometheus.Registry) (*EnrichmentMetrics, error) {
	m := &EnrichmentMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EnrichmentMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_operations_total",
			Help: "Total number of enrichment fetches",
		},
		[]string{"operation", "status"}, // operation: sequence, known_sites
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrichment_operation_duration_seconds",
			Help:    "Time taken for reference API fetches",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)

	m.cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enrichment_cache_hits_total",
			Help: "Total number of reference API cache hits",
		},
	)

	m.cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enrichment_cache_misses_total",
			Help: "Total number of reference API cache misses",
		},
	)

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
	}
}

// RecordOperation increments the fetch counter for one operation outcome.
func (m *EnrichmentMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordOperationDuration records how long one fetch took.
func (m *EnrichmentMetrics) RecordOperationDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordCache adds deltas to the cache hit and miss counters.
func (m *EnrichmentMetrics) RecordCache(hits, misses int64) {
	m.cacheHitsTotal.Add(float64(hits))
	m.cacheMissesTotal.Add(float64(misses))
}

// Describe implements the Collector interface
func (m *EnrichmentMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *EnrichmentMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}
