package telemetry

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveSource("Reddit", 3, nil, time.Second)
	m.ObserveClassification(StatusOK)
	m.ObserveFetch(StatusCache)
	m.ObserveUpsert(errors.New("x"))
	m.ObserveSearch(nil, time.Second)
	m.ObserveLLM("summary", nil)
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}

func TestObserveAndServe(t *testing.T) {
	m := New()
	m.ObserveSource("Reddit", 3, nil, 10*time.Millisecond)
	m.ObserveSource("Bluesky", 0, errors.New("down"), time.Millisecond)
	m.ObserveUpsert(nil)
	m.ObserveUpsert(nil)

	if got := testutil.ToFloat64(m.sourceItems.WithLabelValues("Reddit")); got != 3 {
		t.Fatalf("expected 3 reddit items, got %v", got)
	}
	if got := testutil.ToFloat64(m.sourceRequests.WithLabelValues("Bluesky", StatusError)); got != 1 {
		t.Fatalf("expected 1 bluesky error, got %v", got)
	}
	if got := testutil.ToFloat64(m.upserts.WithLabelValues(StatusOK)); got != 2 {
		t.Fatalf("expected 2 upserts, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "newslens_source_requests_total") {
		t.Fatalf("metrics output missing source counter")
	}
}
