package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFulfillment("success", 20*time.Millisecond)
	m.ObserveFulfillment("success", 30*time.Millisecond)
	m.ObserveFulfillment("insufficient_stock", time.Millisecond)
	m.ObserveReconciliation("committed")
	m.SetPendingPlans(2)
	m.ObserveHTTP("/order", "POST", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fulfillmentAttempts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fulfillmentAttempts.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciliations.WithLabelValues("committed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pendingPlans))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/order", "POST", "200")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFulfillment("success", time.Second)
		m.ObserveReconciliation("conflict")
		m.SetPendingPlans(1)
		m.ObserveHTTP("/", "GET", 200, time.Second)
	})
}
