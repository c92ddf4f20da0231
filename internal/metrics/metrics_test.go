package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDocument("TEXT", ResultAccepted)
	m.ObserveDocument("TEXT", ResultAccepted)
	m.ObserveDocument("XML", ResultRejected)
	m.ChunksEnqueued(3, 3)
	m.ChunkServed(2)
	m.ObserveRequest("/addToQueue", http.StatusOK, 5*time.Millisecond)
	m.RateLimited()
	m.Replayed()

	if got := testutil.ToFloat64(m.documents.WithLabelValues("TEXT", ResultAccepted)); got != 2 {
		t.Errorf("accepted documents = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.documents.WithLabelValues("XML", ResultRejected)); got != 1 {
		t.Errorf("rejected documents = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.chunksEnqueued); got != 3 {
		t.Errorf("chunks enqueued = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.queueDepth); got != 2 {
		t.Errorf("queue depth = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/addToQueue", "200")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rateLimited); got != 1 {
		t.Errorf("rate limited = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.replays); got != 1 {
		t.Errorf("replays = %v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveDocument("TEXT", ResultAccepted)
	m.ChunksEnqueued(1, 1)
	m.ChunkServed(0)
	m.ObserveRequest("/", http.StatusOK, time.Millisecond)
	m.RateLimited()
	m.Replayed()
}
