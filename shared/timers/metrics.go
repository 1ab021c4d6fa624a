package timers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for timers. A nil *Metrics records nothing.
type Metrics struct {
	Started   prometheus.Counter
	Stopped   prometheus.Counter
	Conflicts prometheus.Counter
	Elapsed   prometheus.Histogram
	Cleaned   prometheus.Counter
}

// NewMetrics creates timer metrics and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Started: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timers_started_total",
			Help:      "Timers started",
		}),
		Stopped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timers_stopped_total",
			Help:      "Timers stopped",
		}),
		Conflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_start_conflicts_total",
			Help:      "Starts rejected because the timer was already running",
		}),
		Elapsed: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "timer_elapsed_seconds",
			Help:      "Measured duration of stopped timers",
			Buckets:   []float64{60, 300, 900, 1800, 3600, 4 * 3600, 8 * 3600, 24 * 3600, 7 * 24 * 3600},
		}),
		Cleaned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timers_cleaned_total",
			Help:      "Stopped timers removed by retention cleanup",
		}),
	}
}

func (m *Metrics) incStarted() {
	if m == nil {
		return
	}
	m.Started.Inc()
}

func (m *Metrics) incConflict() {
	if m == nil {
		return
	}
	m.Conflicts.Inc()
}

func (m *Metrics) observeStopped(seconds float64) {
	if m == nil {
		return
	}
	m.Stopped.Inc()
	m.Elapsed.Observe(seconds)
}

func (m *Metrics) addCleaned(n int64) {
	if m == nil {
		return
	}
	m.Cleaned.Add(float64(n))
}
