// Package metrics exposes the Prometheus instrumentation for the ingest
// pipeline and the search engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles all collectors behind one registry.
type Metrics struct {
	registry *prometheus.Registry

	RecordsProcessed *prometheus.CounterVec
	RecordErrors     *prometheus.CounterVec
	BatchDuration    *prometheus.HistogramVec
	SearchRequests   *prometheus.CounterVec
	SearchDuration   prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		RecordsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citypulse",
			Name:      "records_processed_total",
			Help:      "Records resolved by the pipeline, by source and decision.",
		}, []string{"source", "decision"}),
		RecordErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citypulse",
			Name:      "record_errors_total",
			Help:      "Records rejected or failed, by source and stage.",
		}, []string{"source", "stage"}),
		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citypulse",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one ingest batch.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"source"}),
		SearchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citypulse",
			Name:      "search_requests_total",
			Help:      "Search requests, by outcome.",
		}, []string{"outcome"}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "citypulse",
			Name:      "search_duration_seconds",
			Help:      "End-to-end hybrid search latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
