package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	ChargesCreated   *prometheus.CounterVec
	ChargeRefreshes  *prometheus.CounterVec
	NotifiesHandled  *prometheus.CounterVec
	RefundsRequested *prometheus.CounterVec
	CloseTasksFired  prometheus.Counter
}

// New creates and registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "In-flight HTTP requests.",
		}),
		ChargesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trade_charges_created_total",
			Help: "Charges created by channel.",
		}, []string{"channel"}),
		ChargeRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trade_charge_refreshes_total",
			Help: "Charge refresh outcomes by source and result status.",
		}, []string{"source", "status"}),
		NotifiesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trade_notifies_total",
			Help: "Inbound platform notifications by platform and outcome.",
		}, []string{"platform", "outcome"}),
		RefundsRequested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trade_refunds_requested_total",
			Help: "Refund requests by channel.",
		}, []string{"channel"}),
		CloseTasksFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trade_close_tasks_fired_total",
			Help: "Timeout-close tasks fired by the scheduler worker.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ChargesCreated,
		m.ChargeRefreshes,
		m.NotifiesHandled,
		m.RefundsRequested,
		m.CloseTasksFired,
	)
	return m
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
