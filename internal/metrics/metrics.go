// Package metrics exposes Prometheus instrumentation for the ingestion and
// reporting pipeline: adapter call counts and latency, retry and
// circuit-breaker activity, batch duration, and publish latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AdapterCalls counts provider adapter invocations by source and outcome.
	AdapterCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adflow_adapter_calls_total",
		Help: "Total provider adapter extraction calls.",
	}, []string{"source", "outcome"})

	// AdapterCallDuration measures adapter extraction latency.
	AdapterCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adflow_adapter_call_duration_seconds",
		Help:    "Provider adapter extraction duration.",
		Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120, 180},
	}, []string{"source"})

	// AdapterRetries counts retry attempts per source and error kind.
	AdapterRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adflow_adapter_retries_total",
		Help: "Total adapter retry attempts.",
	}, []string{"source", "kind"})

	// AdapterPages counts pages fetched per source, for pagination visibility.
	AdapterPages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adflow_adapter_pages_total",
		Help: "Total pages fetched by provider adapters.",
	}, []string{"source"})

	// CircuitBreakerState reports the current state (0=closed,1=half-open,2=open).
	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "adflow_circuit_breaker_state",
		Help: "Circuit breaker state per provider.",
	}, []string{"name"})

	// CircuitBreakerTransitions counts state transitions.
	CircuitBreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adflow_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions.",
	}, []string{"name", "from", "to"})

	// BatchDuration measures full ingest-tick duration.
	BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "adflow_batch_duration_seconds",
		Help:    "Ingest batch duration across all sources.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	// BatchRowsLoaded counts rows appended to the warehouse per table.
	BatchRowsLoaded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adflow_batch_rows_loaded_total",
		Help: "Rows appended to the warehouse per table.",
	}, []string{"table"})

	// BatchSourceFailures counts per-source failures within a batch.
	BatchSourceFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adflow_batch_source_failures_total",
		Help: "Per-source extraction failures within an ingest batch.",
	}, []string{"source", "kind"})

	// PublishDuration measures publisher sink render+send latency.
	PublishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adflow_publish_duration_seconds",
		Help:    "Publisher sink render and delivery duration.",
		Buckets: []float64{.1, .5, 1, 5, 10, 30},
	}, []string{"sink"})

	// AlarmsEmitted counts alarm cards posted, by level.
	AlarmsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adflow_alarms_emitted_total",
		Help: "Alarm cards posted to the alarm webhook.",
	}, []string{"level"})
)

// Registry is the registry all adflow metrics are registered into. Kept
// distinct from the default global registry so tests can spin up isolated
// registries without colliding on duplicate registration.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		AdapterCalls,
		AdapterCallDuration,
		AdapterRetries,
		AdapterPages,
		CircuitBreakerState,
		CircuitBreakerTransitions,
		BatchDuration,
		BatchRowsLoaded,
		BatchSourceFailures,
		PublishDuration,
		AlarmsEmitted,
	)
}
