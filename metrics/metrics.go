// Package metrics exposes Prometheus counters and histograms for the
// ingestion engine: an ambient observability concern, carried even
// though business-value querying over the ingested data is out of
// scope for this target.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every counter and histogram the engine reports against.
type Metrics struct {
	RowsFlushed       *prometheus.CounterVec
	RowsFailed        *prometheus.CounterVec
	FlushDuration     *prometheus.HistogramVec
	ReconcileAttempts *prometheus.CounterVec
}

// New registers a fresh set of metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RowsFlushed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "target_bigquery",
			Name:      "rows_flushed_total",
			Help:      "Rows successfully written to the warehouse, by stream.",
		}, []string{"stream"}),
		RowsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "target_bigquery",
			Name:      "rows_failed_total",
			Help:      "Rows that exhausted their flush retry budget, by stream.",
		}, []string{"stream"}),
		FlushDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "target_bigquery",
			Name:      "flush_duration_seconds",
			Help:      "Wall-clock duration of a single stream flush attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stream"}),
		ReconcileAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "target_bigquery",
			Name:      "reconcile_attempts_total",
			Help:      "Table reconciliation attempts, by stream and outcome.",
		}, []string{"stream", "outcome"}),
	}
}

// Handler returns the HTTP handler to serve at --metrics-addr.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
