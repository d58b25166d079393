// Package metrics exposes Prometheus collectors for ingestion, embedding and retrieval.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "verso_rag"

// Outcome labels.
const (
	OutcomeIndexed   = "indexed"
	OutcomeSkipped   = "skipped"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeFound     = "found"
	OutcomeNone      = "none"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ingestions        *prometheus.CounterVec
	ingestionDuration prometheus.Histogram
	chunksIndexed     prometheus.Counter
	embeddingRequests *prometheus.CounterVec
	retrievals        *prometheus.CounterVec
}

// New creates and registers all collectors, plus Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		ingestionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Wall time of ingestion runs that reached extraction.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		chunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Chunks committed to the vector store.",
		}),
		embeddingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Remote embedding requests by outcome.",
		}, []string{"outcome"}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Context retrievals by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.ingestions,
		m.ingestionDuration,
		m.chunksIndexed,
		m.embeddingRequests,
		m.retrievals,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveIngestion records one finished ingestion run.
func (m *Metrics) ObserveIngestion(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.ingestionDuration.Observe(elapsed.Seconds())
	}
}

// AddChunksIndexed counts committed chunks.
func (m *Metrics) AddChunksIndexed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunksIndexed.Add(float64(n))
}

// ObserveEmbeddingRequest records one remote embedding call.
func (m *Metrics) ObserveEmbeddingRequest(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.embeddingRequests.WithLabelValues(outcome).Inc()
}

// ObserveRetrieval records one context retrieval.
func (m *Metrics) ObserveRetrieval(outcome string) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(outcome).Inc()
}
