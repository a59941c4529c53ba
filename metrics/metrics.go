// Package metrics records Prometheus metrics for the bridge on a registry
// owned by each module instance. A nil *Metrics records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace of every bridge metric.
	Namespace = "keychain_bridge"

	LabelOperation = "operation"
	LabelStatus    = "status"

	StatusSuccess = "success"
	StatusError   = "error"
)

type Metrics struct {
	Registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	sessions   prometheus.Gauge
	tokens     prometheus.Gauge
}

// New registers the bridge metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "operations_total",
				Help:      "Total number of PKCS#11 operations by operation and status",
			},
			[]string{LabelOperation, LabelStatus},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of PKCS#11 operations in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
			},
			[]string{LabelOperation},
		),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_open",
			Help:      "Number of open sessions",
		}),
		tokens: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "tokens_present",
			Help:      "Number of tokens present in a slot",
		}),
	}
}

// RecordOperation counts one operation and observes its duration.
func (m *Metrics) RecordOperation(operation string, err error, started time.Time) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionsClosed(n int) {
	if m != nil {
		m.sessions.Sub(float64(n))
	}
}

func (m *Metrics) SetTokens(n int) {
	if m != nil {
		m.tokens.Set(float64(n))
	}
}
