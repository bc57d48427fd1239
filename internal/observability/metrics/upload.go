// Package metrics provides Prometheus collectors for the upload pipeline and
// the enrichment gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// UploadMetrics contains Prometheus metrics for upload processing
type UploadMetrics struct {
	registry *prometheus.Registry

	uploadsTotal        *prometheus.CounterVec
	uploadDuration      prometheus.Histogram
	rowsProcessedTotal  prometheus.Counter
	rowsRejectedTotal   prometheus.Counter
	sessionsActiveGauge prometheus.Gauge

	collectors []prometheus.Collector
}

// NewUploadMetrics creates and registers new upload metrics
func NewUploadMetrics(registry *prometheus.Registry) (*UploadMetrics, error) {
	m := &UploadMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *UploadMetrics) initMetrics() {
	m.uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upload_operations_total",
			Help: "Total number of processed uploads",
		},
		[]string{"status"}, // status: completed, failed
	)

	m.uploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upload_duration_seconds",
			Help:    "Time taken to parse and store an uploaded file",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	m.rowsProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upload_rows_processed_total",
			Help: "Total number of observation rows accepted",
		},
	)

	m.rowsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upload_rows_rejected_total",
			Help: "Total number of rows skipped by validation",
		},
	)

	m.sessionsActiveGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_total",
			Help: "Number of analysis sessions in the datastore",
		},
	)

	m.collectors = []prometheus.Collector{
		m.uploadsTotal,
		m.uploadDuration,
		m.rowsProcessedTotal,
		m.rowsRejectedTotal,
		m.sessionsActiveGauge,
	}
}

// RecordUpload increments the upload counter for the given terminal status.
func (m *UploadMetrics) RecordUpload(status string) {
	m.uploadsTotal.WithLabelValues(status).Inc()
}

// RecordUploadDuration records how long an upload took end to end.
func (m *UploadMetrics) RecordUploadDuration(seconds float64) {
	m.uploadDuration.Observe(seconds)
}

// RecordRows adds to the accepted and rejected row counters.
func (m *UploadMetrics) RecordRows(processed, rejected int) {
	m.rowsProcessedTotal.Add(float64(processed))
	m.rowsRejectedTotal.Add(float64(rejected))
}

// SetActiveSessions updates the session count gauge.
func (m *UploadMetrics) SetActiveSessions(count int) {
	m.sessionsActiveGauge.Set(float64(count))
}

// Describe implements the Collector interface
func (m *UploadMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *UploadMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}
