// Package instrument holds the relay's counters.
//
// Each counter is kept twice: as an atomic cumulative value the monitor
// samples, and as a Prometheus metric exported on /metrics. Nothing here is
// process-global; every Metrics owns its own registry.
package instrument

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cipherline"

// Metrics is the set of relay counters.
type Metrics struct {
	registry *prometheus.Registry

	failedLogins   atomic.Uint64
	failedRequests atomic.Uint64

	failedLoginsTotal   prometheus.Counter
	failedRequestsTotal prometheus.Counter
	framesTotal         *prometheus.CounterVec
	relayedTotal        prometheus.Counter
	deliveryFailures    prometheus.Counter
	replaysTotal        prometheus.Counter
	rejectedConns       prometheus.Counter
	alertsTotal         *prometheus.CounterVec
}

// New builds and registers all counters on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		failedLoginsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_logins_total",
			Help:      "Number of failed authentication attempts",
		}),
		failedRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_requests_total",
			Help:      "Number of rejected frames and requests",
		}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Number of inbound frames by type",
		}, []string{"type"}),
		relayedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Number of envelopes delivered to recipient connections",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Number of per-connection delivery failures",
		}),
		replaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replayed_envelopes_total",
			Help:      "Number of envelopes rejected as replays",
		}),
		rejectedConns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_connections_total",
			Help:      "Number of connections refused by admission control",
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Number of monitor alerts raised by kind",
		}, []string{"kind", "severity"}),
	}
	m.registry.MustRegister(
		m.failedLoginsTotal,
		m.failedRequestsTotal,
		m.framesTotal,
		m.relayedTotal,
		m.deliveryFailures,
		m.replaysTotal,
		m.rejectedConns,
		m.alertsTotal,
	)
	return m
}

// RegisterGauges exports live connection and session counts.
func (m *Metrics) RegisterGauges(connections, sessions func() int) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of open client connections",
		}, func() float64 { return float64(connections()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live sessions",
		}, func() float64 { return float64(sessions()) }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) FailedLogin() {
	m.failedLogins.Add(1)
	m.failedLoginsTotal.Inc()
}

func (m *Metrics) FailedRequest() {
	m.failedRequests.Add(1)
	m.failedRequestsTotal.Inc()
}

func (m *Metrics) Frame(kind string)           { m.framesTotal.WithLabelValues(kind).Inc() }
func (m *Metrics) Relayed()                    { m.relayedTotal.Inc() }
func (m *Metrics) DeliveryFailure()            { m.deliveryFailures.Inc() }
func (m *Metrics) Replay()                     { m.replaysTotal.Inc() }
func (m *Metrics) RejectedConnection()         { m.rejectedConns.Inc() }
func (m *Metrics) Alert(kind, severity string) { m.alertsTotal.WithLabelValues(kind, severity).Inc() }

// FailedLogins returns the cumulative failed-login count.
func (m *Metrics) FailedLogins() uint64 { return m.failedLogins.Load() }

// FailedRequests returns the cumulative failed-request count.
func (m *Metrics) FailedRequests() uint64 { return m.failedRequests.Load() }
