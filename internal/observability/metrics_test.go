package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRequest("/api/v1/change-requests", "POST", 201, 10*time.Millisecond)
	m.RecordRequest("/api/v1/change-requests", "POST", 201, 20*time.Millisecond)
	m.RecordError("/api/v1/change-requests/:id/approve", "POST", "STALE_STATE")
	m.RecordTransition("approved", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("/api/v1/change-requests", "POST", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorTotal.WithLabelValues("/api/v1/change-requests/:id/approve", "POST", "STALE_STATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionTotal.WithLabelValues("approved", "3")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "NOT_FOUND")
		m.RecordTransition("created", 1)
	})
}
