package proxy

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// Metrics holds the proxy metrics. It implements prometheus.Collector.
type Metrics struct {
	requests     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

// NewMetrics creates proxy metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Total number of proxied Kubernetes API requests",
			},
			[]string{"cluster", "code"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "errors_total",
				Help:      "Total number of proxy errors by reason",
			},
			[]string{"cluster", "reason"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per cluster (0=closed, 1=half-open, 2=open)",
			},
			[]string{"cluster"},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.requests.Describe(ch)
	m.errors.Describe(ch)
	m.breakerState.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.requests.Collect(ch)
	m.errors.Collect(ch)
	m.breakerState.Collect(ch)
}

func (m *Metrics) request(clusterID string, code int) {
	m.requests.WithLabelValues(clusterID, strconv.Itoa(code)).Inc()
}

func (m *Metrics) failure(clusterID, reason string) {
	m.errors.WithLabelValues(clusterID, reason).Inc()
}

func (m *Metrics) state(clusterID string, s gobreaker.State) {
	var v float64
	switch s {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(clusterID).Set(v)
}

func (m *Metrics) forget(clusterID string) {
	m.breakerState.DeleteLabelValues(clusterID)
}
