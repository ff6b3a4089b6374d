package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricFeedConnections = "feed_connections_active"
	MetricFeedDeltas      = "feed_deltas_emitted_total"
	MetricFeedPollErrors  = "feed_poll_errors_total"
)

// Metrics contains Prometheus metrics for change-feed producers.
// All operations are thread-safe.
type Metrics struct {
	connections prometheus.Gauge
	deltas      *prometheus.CounterVec
	pollErrors  prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricFeedConnections,
			Help: "Number of currently connected event stream clients",
		}),
		deltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFeedDeltas,
			Help: "Total number of deltas emitted on event streams",
		}, []string{"type"}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFeedPollErrors,
			Help: "Total number of store errors swallowed during feed polling",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.connections,
		m.deltas,
		m.pollErrors,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncConnections increments the active connection gauge.
func (m *Metrics) IncConnections() {
	m.connections.Inc()
}

// DecConnections decrements the active connection gauge.
func (m *Metrics) DecConnections() {
	m.connections.Dec()
}

// IncDeltas increments the emitted delta counter for a delta type.
func (m *Metrics) IncDeltas(deltaType string) {
	m.deltas.WithLabelValues(deltaType).Inc()
}

// IncPollErrors increments the swallowed poll error counter.
func (m *Metrics) IncPollErrors() {
	m.pollErrors.Inc()
}
