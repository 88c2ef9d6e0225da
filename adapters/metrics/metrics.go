// Package metrics provides Prometheus metrics collection for Metergate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for Metergate.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Ingestion metrics
	EventsIngested *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	EventsDropped  prometheus.Counter

	// Recorder metrics
	FlushBatches   prometheus.Counter
	FlushErrors    prometheus.Counter
	FlushRetries   prometheus.Counter
	RecorderQueued prometheus.Gauge

	// Store metrics
	StoreQueryDuration *prometheus.HistogramVec
	StoreErrors        *prometheus.CounterVec

	// Quota metrics
	QuotaEvaluations *prometheus.CounterVec

	// Config metrics
	ConfigReloads prometheus.Counter
}

// New creates a new metrics collector registered on the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "metergate",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "metergate",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		EventsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "events_ingested_total",
				Help:      "Total usage events accepted for recording",
			},
			[]string{"kind"},
		),
		EventsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "events_rejected_total",
				Help:      "Total usage events rejected at validation",
			},
			[]string{"reason"},
		),
		EventsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "events_dropped_total",
				Help:      "Total usage events dropped after retry exhaustion",
			},
		),
		FlushBatches: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "flush_batches_total",
				Help:      "Total recorder batches flushed to the store",
			},
		),
		FlushErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "flush_errors_total",
				Help:      "Total recorder flush attempts that failed",
			},
		),
		FlushRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "flush_retries_total",
				Help:      "Total recorder flush retries",
			},
		),
		RecorderQueued: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "metergate",
				Name:      "recorder_queued_events",
				Help:      "Usage events currently buffered in the recorder",
			},
		),
		StoreQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "metergate",
				Name:      "store_query_duration_seconds",
				Help:      "Event store operation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"op"},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "store_errors_total",
				Help:      "Total event store operation errors",
			},
			[]string{"op"},
		),
		QuotaEvaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "quota_evaluations_total",
				Help:      "Total quota evaluations by resulting state",
			},
			[]string{"state"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
	}
}
