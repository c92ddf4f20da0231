// Package metrics exposes Prometheus collectors for the ingestion queue and
// its HTTP transport.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speechify"

// Document results recorded by ObserveDocument.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)

// Metrics groups the collectors registered by New. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	documents      *prometheus.CounterVec
	chunksEnqueued prometheus.Counter
	chunksServed   prometheus.Counter
	queueDepth     prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	rateLimited  prometheus.Counter
	replays      prometheus.Counter
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer to
// expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		documents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents submitted for ingestion, by type and result",
		}, []string{"type", "result"}),

		chunksEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_enqueued_total",
			Help:      "Chunks appended to the queue",
		}),

		chunksServed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_served_total",
			Help:      "Chunks removed from the queue",
		}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Chunks currently waiting in the queue",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, by route and status code",
		}, []string{"route", "code"}),

		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"route"}),

		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Submissions rejected by the ingestion rate limiter",
		}),

		replays: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotent_replays_total",
			Help:      "Submissions and pulls answered from the idempotency cache",
		}),
	}
}

// ObserveDocument records the outcome of one submission.
func (m *Metrics) ObserveDocument(docType, result string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(docType, result).Inc()
}

// ChunksEnqueued records n appended chunks and the resulting queue depth.
func (m *Metrics) ChunksEnqueued(n, depth int) {
	if m == nil {
		return
	}
	m.chunksEnqueued.Add(float64(n))
	m.queueDepth.Set(float64(depth))
}

// ChunkServed records one dequeued chunk and the resulting queue depth.
func (m *Metrics) ChunkServed(depth int) {
	if m == nil {
		return
	}
	m.chunksServed.Inc()
	m.queueDepth.Set(float64(depth))
}

// ObserveRequest records a finished HTTP request.
func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}

// RateLimited records a submission refused by the limiter.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Replayed records a submission or pull answered from the idempotency cache.
func (m *Metrics) Replayed() {
	if m == nil {
		return
	}
	m.replays.Inc()
}
