package portforward

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds port-forward metrics. It implements prometheus.Collector.
type Metrics struct {
	starts *prometheus.CounterVec
	active prometheus.Gauge
}

// NewMetrics creates port-forward metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		starts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "portforward",
				Name:      "starts_total",
				Help:      "Total number of port-forward start attempts",
			},
			[]string{"kind", "result"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "portforward",
				Name:      "active",
				Help:      "Number of active port forwards",
			},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.starts.Describe(ch)
	m.active.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.starts.Collect(ch)
	m.active.Collect(ch)
}
