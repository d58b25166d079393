package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.ObserveIngestion(OutcomeIndexed, 2*time.Second)
	m.ObserveIngestion(OutcomeSkipped, 0)
	m.AddChunksIndexed(7)
	m.ObserveEmbeddingRequest(nil)
	m.ObserveEmbeddingRequest(errors.New("boom"))
	m.ObserveRetrieval(OutcomeFound)

	body := scrape(t, m)
	for _, want := range []string{
		`verso_rag_ingestions_total{outcome="indexed"} 1`,
		`verso_rag_ingestions_total{outcome="skipped"} 1`,
		`verso_rag_ingestion_duration_seconds_count 1`,
		`verso_rag_chunks_indexed_total 7`,
		`verso_rag_embedding_requests_total{outcome="error"} 1`,
		`verso_rag_embedding_requests_total{outcome="success"} 1`,
		`verso_rag_retrievals_total{outcome="found"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveIngestion(OutcomeFailed, time.Second)
	m.AddChunksIndexed(3)
	m.ObserveEmbeddingRequest(nil)
	m.ObserveRetrieval(OutcomeNone)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil handler status = %d, want 404", rec.Code)
	}
}
