// Package metrics provides Prometheus metrics for ingestion and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion modes used as label values.
const (
	ModeSingle = "single"
	ModeBatch  = "batch"
)

// Metrics contains the collectors registered for the server. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	detectionsIngested  *prometheus.CounterVec
	detectionsRejected  *prometheus.CounterVec
	ingestRequests      *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a registry holding the server metrics plus Go runtime and
// process collectors.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.detectionsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detections_ingested_total",
			Help: "Total number of detections committed to storage",
		},
		[]string{"mode"},
	)

	m.detectionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detections_rejected_total",
			Help: "Total number of detections rejected by validation or storage",
		},
		[]string{"mode"},
	)

	m.ingestRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_ingest_requests_total",
			Help: "Total number of ingestion requests by outcome",
		},
		[]string{"mode", "status"}, // status: ok, invalid, error
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	for _, c := range []prometheus.Collector{
		m.detectionsIngested,
		m.detectionsRejected,
		m.ingestRequests,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordIngest records one ingestion request and its per-record outcome.
func (m *Metrics) RecordIngest(mode, status string, inserted, rejected int) {
	if m == nil {
		return
	}
	m.ingestRequests.WithLabelValues(mode, status).Inc()
	if inserted > 0 {
		m.detectionsIngested.WithLabelValues(mode).Add(float64(inserted))
	}
	if rejected > 0 {
		m.detectionsRejected.WithLabelValues(mode).Add(float64(rejected))
	}
}

// RecordHTTPRequest records a finished HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
