package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors of the service.
type Metrics struct {
	gatherer prometheus.Gatherer

	requestTotal    *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	errorTotal      *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
}

// NewMetrics registers collectors on reg. A nil reg gets a fresh registry so
// several instances can coexist in one process.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		requestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "change_requests",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"path", "method", "status"}),
		requestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "change_requests",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution for HTTP requests.",
			Buckets: []float64{
				0.001, 0.005, 0.01,
				0.05, 0.1, 0.25,
				0.5, 1, 2.5, 5,
			},
		}, []string{"path", "method"}),
		errorTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "change_requests",
			Name:      "http_errors_total",
			Help:      "Total number of failed requests by error code.",
		}, []string{"path", "method", "code"}),
		transitionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "change_requests",
			Name:      "workflow_transitions_total",
			Help:      "Committed workflow mutations by action and originating stage.",
		}, []string{"action", "stage"}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorTotal.WithLabelValues(path, method, code).Inc()
}

// RecordTransition counts a committed workflow mutation.
func (m *Metrics) RecordTransition(action string, stage int) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(action, strconv.Itoa(stage)).Inc()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
