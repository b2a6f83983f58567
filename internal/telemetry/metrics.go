// Package telemetry exposes prometheus collectors for the pipeline. Every
// method is safe on a nil *Metrics so components can run unmetered.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newslens"

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusCache = "cache"
	StatusSkip  = "skipped"
)

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	sourceRequests  *prometheus.CounterVec
	sourceLatency   *prometheus.HistogramVec
	sourceItems     *prometheus.CounterVec
	classifications *prometheus.CounterVec
	fetches         *prometheus.CounterVec
	upserts         *prometheus.CounterVec
	searches        *prometheus.CounterVec
	searchLatency   prometheus.Histogram
	llmRequests     *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		sourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "source_requests_total",
			Help: "Source adapter searches by outcome.",
		}, []string{"source", "status"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "source_latency_seconds",
			Help:    "Source adapter search latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		sourceItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "source_items_total",
			Help: "Raw items returned per source.",
		}, []string{"source"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bias_classifications_total",
			Help: "Bias classification calls by outcome.",
		}, []string{"status"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetch_requests_total",
			Help: "Outlet full-text fetches by outcome.",
		}, []string{"status"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_upserts_total",
			Help: "Session cache upserts by outcome.",
		}, []string{"status"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "searches_total",
			Help: "Aggregated searches by outcome.",
		}, []string{"status"}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "search_latency_seconds",
			Help:    "End to end search latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_requests_total",
			Help: "LLM calls by operation and outcome.",
		}, []string{"operation", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sourceRequests, m.sourceLatency, m.sourceItems, m.classifications,
		m.fetches, m.upserts, m.searches, m.searchLatency, m.llmRequests,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveSource(source string, items int, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.sourceRequests.WithLabelValues(source, status(err)).Inc()
	m.sourceLatency.WithLabelValues(source).Observe(d.Seconds())
	m.sourceItems.WithLabelValues(source).Add(float64(items))
}

func (m *Metrics) ObserveClassification(s string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(s).Inc()
}

func (m *Metrics) ObserveFetch(s string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(s).Inc()
}

func (m *Metrics) ObserveUpsert(err error) {
	if m == nil {
		return
	}
	m.upserts.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) ObserveSearch(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(status(err)).Inc()
	m.searchLatency.Observe(d.Seconds())
}

func (m *Metrics) ObserveLLM(operation string, err error) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(operation, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
