package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.MessageStored("user")
	m.MessageStored("assistant")
	m.MessageStored("assistant")
	m.Completion(OutcomeFallback)
	m.JobScheduled("memory")
	m.ObserveResponse(1500 * time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		`jindalchat_messages_stored_total{role="assistant"} 2`,
		`jindalchat_completions_total{outcome="fallback"} 1`,
		`jindalchat_jobs_scheduled_total{backend="memory"} 1`,
		"jindalchat_response_duration_seconds_bucket",
	} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("exposition missing %s", name)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.MessageStored("user")
	m.Completion(OutcomeSuccess)
	m.JobScheduled("memory")
	m.ObserveResponse(time.Second)
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
}
