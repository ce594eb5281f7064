package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the HTTP front-end, registered
// on a private registry so parallel servers and tests never collide.
type Metrics struct {
	Registry *prometheus.Registry

	Invocations *prometheus.CounterVec
	Duration    prometheus.Histogram
	InFlight    prometheus.Gauge
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "luma",
			Name:      "invocations_total",
			Help:      "Script invocations by outcome kind.",
		}, []string{"outcome"}),

		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "luma",
			Name:      "invocation_duration_seconds",
			Help:      "Script invocation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),

		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "luma",
			Name:      "invocations_in_flight",
			Help:      "Evaluations currently running.",
		}),
	}

	reg.MustRegister(m.Invocations, m.Duration, m.InFlight)
	return m
}

// observe records one finished invocation.
func (m *Metrics) observe(kind string, elapsed time.Duration) {
	m.Invocations.WithLabelValues(kind).Inc()
	m.Duration.Observe(elapsed.Seconds())
}
