package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signaltrack"

// Metrics collects feed, hub and signal counters on its own registry.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	ticks          *prometheus.CounterVec
	parseErrors    prometheus.Counter
	connectAttempt prometheus.Counter
	feedState      prometheus.Gauge
	subscribers    prometheus.Gauge
	hubDrops       *prometheus.CounterVec
	signals        *prometheus.CounterVec
	signalLatency  *prometheus.HistogramVec
}

// NewMetrics allocates a metrics container with a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "feed_ticks_total", Help: "Price ticks ingested from upstream.",
		}, []string{"instrument"}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "feed_parse_errors_total", Help: "Upstream messages dropped as malformed.",
		}),
		connectAttempt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "feed_connect_attempts_total", Help: "Upstream connection attempts.",
		}),
		feedState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "feed_state", Help: "Feed state: 0 disconnected, 1 connecting, 2 subscribing, 3 streaming.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "hub_subscribers", Help: "Registered hub subscribers.",
		}),
		hubDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "hub_drops_total", Help: "Samples dropped or subscribers removed on overflow.",
		}, []string{"reason"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signal_events_total", Help: "Processed signal events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		signalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "signal_event_seconds", Help: "Signal event processing latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.ticks,
		m.parseErrors,
		m.connectAttempt,
		m.feedState,
		m.subscribers,
		m.hubDrops,
		m.signals,
		m.signalLatency,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncTick(instrument string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(instrument).Inc()
}

func (m *Metrics) IncParseError() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}

func (m *Metrics) IncConnectAttempt() {
	if m == nil {
		return
	}
	m.connectAttempt.Inc()
}

func (m *Metrics) SetFeedState(state int) {
	if m == nil {
		return
	}
	m.feedState.Set(float64(state))
}

func (m *Metrics) SetHubSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func (m *Metrics) IncHubDrop(reason string) {
	if m == nil {
		return
	}
	m.hubDrops.WithLabelValues(reason).Inc()
}

// ObserveSignal records one processed event and how long it took.
func (m *Metrics) ObserveSignal(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(kind, outcome).Inc()
	if d >= 0 {
		m.signalLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}
