package middleware

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for middleware operations. It
// implements prometheus.Collector.
type Metrics struct {
	bodyLimitRejected prometheus.Counter
	panicsRecovered   prometheus.Counter
}

// NewMetrics creates middleware metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		bodyLimitRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "middleware",
				Name:      "body_limit_rejected_total",
				Help:      "Total number of requests rejected by the body size limit",
			},
		),
		panicsRecovered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered outside route handlers",
			},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.bodyLimitRejected.Describe(ch)
	m.panicsRecovered.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.bodyLimitRejected.Collect(ch)
	m.panicsRecovered.Collect(ch)
}
