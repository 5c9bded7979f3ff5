package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingestion Prometheus metrics.
var (
	UnitsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "units_written_total",
			Help:      "Total number of units written to the vector stores",
		},
		[]string{"domain"}, // "text" / "image"
	)

	DomainSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "domain_skipped_total",
			Help:      "Total number of ingestion domains skipped as already present",
		},
		[]string{"domain", "tier"},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "runs_total",
			Help:      "Total number of document ingestion runs",
		},
		[]string{"status"}, // "success" / "failed" / "missing" / "canceled"
	)

	ImagesRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "images_rejected_total",
			Help:      "Total number of images rejected as non-informative",
		},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Document ingestion run duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)
)

var ingestMetricsRegistered bool

// Register registers ingestion and HTTP metrics. Must be called once from main.
func Register() {
	if ingestMetricsRegistered {
		return
	}
	prometheus.MustRegister(UnitsWrittenTotal)
	prometheus.MustRegister(DomainSkippedTotal)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(ImagesRejectedTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsTotal)
	ingestMetricsRegistered = true
}

// ObserveRun records the end of one document run.
func ObserveRun(status string, started time.Time) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(time.Since(started).Seconds())
}
