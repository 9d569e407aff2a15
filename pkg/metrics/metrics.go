// Package metrics holds the Prometheus collectors for work that runs outside
// the process, scraped from the debug server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProcessMetrics defines metrics operations needed by subprocess runners.
type ProcessMetrics interface {
	// TrackProcess runs f and records it as one subprocess execution.
	TrackProcess(f func() error) error
}

// Metrics implements ProcessMetrics.
type Metrics struct {
	ProcessesStarted prometheus.Counter
	ProcessFailures  prometheus.Counter
	ActiveProcesses  prometheus.Gauge
	ProcessTime      prometheus.Histogram
}

var _ ProcessMetrics = (*Metrics)(nil)

// TrackProcess tracks the duration of a function and updates the metrics.
func (m *Metrics) TrackProcess(f func() error) error {
	m.ProcessesStarted.Inc()
	m.ActiveProcesses.Inc()
	defer m.ActiveProcesses.Dec()

	start := time.Now()
	err := f()
	m.ProcessTime.Observe(time.Since(start).Seconds())
	if err != nil {
		m.ProcessFailures.Inc()
	}
	return err
}

// New creates a Metrics instance registered with reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProcessesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injection_processes_started_total",
			Help:      "Total number of injection tool processes started",
		}),
		ProcessFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injection_process_failures_total",
			Help:      "Total number of injection tool processes that failed",
		}),
		ActiveProcesses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "injection_processes_active",
			Help:      "Number of injection tool processes currently running",
		}),
		ProcessTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "injection_process_duration_seconds",
			Help:      "Time taken by each injection tool process",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}
