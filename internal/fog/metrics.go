package fog

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricFogReveals     = "fog_reveals_total"
	MetricFogClears      = "fog_clears_total"
	MetricFogAutoReveals = "fog_auto_reveals_total"
)

// Metrics contains Prometheus metrics for fog-of-war operations.
// All operations are thread-safe.
type Metrics struct {
	reveals     prometheus.Counter
	clears      prometheus.Counter
	autoReveals prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		reveals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFogReveals,
			Help: "Total number of manual fog reveal operations",
		}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFogClears,
			Help: "Total number of fog clear operations",
		}),
		autoReveals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFogAutoReveals,
			Help: "Total number of auto-reveal operations",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.reveals,
		m.clears,
		m.autoReveals,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncReveals increments the manual reveal counter.
func (m *Metrics) IncReveals() {
	m.reveals.Inc()
}

// IncClears increments the clear counter.
func (m *Metrics) IncClears() {
	m.clears.Inc()
}

// IncAutoReveals increments the auto-reveal counter.
func (m *Metrics) IncAutoReveals() {
	m.autoReveals.Inc()
}
