package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpBuckets    = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	gatewayBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30}
)

// Metrics holds the gateway's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// outcome: ok, rejected, unavailable, error
	GatewayRequestsTotal   *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec
	// 0 closed, 1 half-open, 2 open
	GatewayBreakerState *prometheus.GaugeVec
	// vocabulary: authorize, ipn
	UnknownStatusTotal *prometheus.CounterVec

	IpnEventsTotal         *prometheus.CounterVec
	StatusTransitionsTotal *prometheus.CounterVec
	ReconciliationTotal    *prometheus.CounterVec

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// New registers the collectors with the default registry.
func New(namespace string) *Metrics {
	return NewWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg.
func NewWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "paygate"
	}
	b := builder{factory: promauto.With(reg), namespace: namespace}

	return &Metrics{
		HTTPRequestsTotal:    b.counter("http", "requests_total", "HTTP requests served", "method", "path", "status"),
		HTTPRequestDuration:  b.histogram("http", "request_duration_seconds", "HTTP request latency", httpBuckets, "method", "path"),
		HTTPRequestsInFlight: b.factory.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "http", Name: "requests_in_flight", Help: "HTTP requests being served"}),

		GatewayRequestsTotal:   b.counter("gateway", "requests_total", "Calls made to payment providers", "gateway", "operation", "outcome"),
		GatewayRequestDuration: b.histogram("gateway", "request_duration_seconds", "Payment provider call latency", gatewayBuckets, "gateway", "operation"),
		GatewayBreakerState:    b.factory.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "gateway", Name: "breaker_state", Help: "Circuit breaker state per gateway"}, []string{"gateway"}),
		UnknownStatusTotal:     b.counter("gateway", "unknown_status_total", "Native statuses missing from a gateway's translation tables", "gateway", "vocabulary"),

		IpnEventsTotal:         b.counter("ipn", "events_total", "Gateway notifications received", "gateway", "outcome"),
		StatusTransitionsTotal: b.counter("payment", "status_transitions_total", "Applied payment status transitions", "gateway", "from", "to"),
		ReconciliationTotal:    b.counter("payment", "reconciliation_flags_total", "Payments flagged for manual reconciliation", "gateway"),

		CacheHitsTotal:   b.counter("cache", "hits_total", "Cache hits", "cache"),
		CacheMissesTotal: b.counter("cache", "misses_total", "Cache misses", "cache"),
	}
}

type builder struct {
	factory   promauto.Factory
	namespace string
}

func (b builder) counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return b.factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: b.namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (b builder) histogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return b.factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: b.namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

// RecordHTTPRequest counts a served request under its route pattern.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordGatewayRequest(gateway, operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequestsTotal.WithLabelValues(gateway, operation, outcome).Inc()
	m.GatewayRequestDuration.WithLabelValues(gateway, operation).Observe(duration.Seconds())
}

func (m *Metrics) SetBreakerState(gateway string, state int) {
	if m == nil {
		return
	}
	m.GatewayBreakerState.WithLabelValues(gateway).Set(float64(state))
}

func (m *Metrics) RecordUnknownStatus(gateway, vocabulary string) {
	if m == nil {
		return
	}
	m.UnknownStatusTotal.WithLabelValues(gateway, vocabulary).Inc()
}

func (m *Metrics) RecordIpnEvent(gateway, outcome string) {
	if m == nil {
		return
	}
	m.IpnEventsTotal.WithLabelValues(gateway, outcome).Inc()
}

func (m *Metrics) RecordTransition(gateway, from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitionsTotal.WithLabelValues(gateway, from, to).Inc()
}

func (m *Metrics) RecordReconciliation(gateway string) {
	if m == nil {
		return
	}
	m.ReconciliationTotal.WithLabelValues(gateway).Inc()
}

func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// statusClass buckets a status code as "2xx", "4xx" and so on.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
