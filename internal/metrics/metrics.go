// Package metrics holds the Prometheus collectors exported by the API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// Metrics groups the application collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	fulfillmentAttempts *prometheus.CounterVec
	fulfillmentDuration *prometheus.HistogramVec
	reconciliations     *prometheus.CounterVec
	pendingPlans        prometheus.Gauge
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fulfillmentAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_attempts_total",
			Help:      "Fulfillment attempts partitioned by outcome.",
		}, []string{"outcome"}),
		fulfillmentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fulfillment_duration_seconds",
			Help:      "Time spent fulfilling an order, including lock waits.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_total",
			Help:      "Reconciliation passes over pending commit plans by result.",
		}, []string{"result"}),
		pendingPlans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_commit_plans",
			Help:      "Commit plans whose outcome is not yet confirmed.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		m.fulfillmentAttempts,
		m.fulfillmentDuration,
		m.reconciliations,
		m.pendingPlans,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// ObserveFulfillment records one finished fulfillment attempt.
func (m *Metrics) ObserveFulfillment(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fulfillmentAttempts.WithLabelValues(outcome).Inc()
	m.fulfillmentDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveReconciliation records the result of reconciling one plan.
func (m *Metrics) ObserveReconciliation(result string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(result).Inc()
}

// SetPendingPlans sets the number of unresolved commit plans.
func (m *Metrics) SetPendingPlans(n int) {
	if m == nil {
		return
	}
	m.pendingPlans.Set(float64(n))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
