package router

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Failure kinds reported by the handler_failures_total counter.
const (
	failureHandler = "error"
	failurePanic   = "panic"
	failureParse   = "parse"
	failureEncode  = "encode"
)

// Metrics holds the dispatch metrics of a Router. It implements
// prometheus.Collector so it can be registered on any registry.
type Metrics struct {
	dispatched *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	failures   *prometheus.CounterVec
	unmatched  *prometheus.CounterVec
}

// NewMetrics creates router metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "dispatched_total",
				Help:      "Total number of requests handled by a registered route",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "handler_duration_seconds",
				Help:      "Time from route match to response written",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "handler_failures_total",
				Help:      "Total number of dispatches that ended in an error response, by cause",
			},
			[]string{"route", "kind"},
		),
		unmatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "unmatched_total",
				Help:      "Total number of requests that matched no route",
			},
			[]string{"method"},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.dispatched.Describe(ch)
	m.duration.Describe(ch)
	m.failures.Describe(ch)
	m.unmatched.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.dispatched.Collect(ch)
	m.duration.Collect(ch)
	m.failures.Collect(ch)
	m.unmatched.Collect(ch)
}

func (m *Metrics) observe(method, route string, status int, elapsed time.Duration) {
	m.dispatched.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) failure(route, kind string) {
	m.failures.WithLabelValues(route, kind).Inc()
}

func (m *Metrics) miss(method string) {
	m.unmatched.WithLabelValues(method).Inc()
}
