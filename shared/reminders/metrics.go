package reminders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the reminder system.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// DeliveriesTotal counts popped reminders by outcome.
	DeliveriesTotal *prometheus.CounterVec

	// PendingReminders is the number of reminders waiting for their due time.
	PendingReminders prometheus.Gauge

	// SendDuration is the time spent delivering one reminder, retries included.
	SendDuration prometheus.Histogram

	// ScanDuration is the time taken by one scan.
	ScanDuration prometheus.Histogram

	// ScansSkipped counts ticks dropped because the previous scan was still running.
	ScansSkipped prometheus.Counter

	// Retries is the total number of retry attempts.
	Retries prometheus.Counter

	// RateLimitWaits counts sends that had to wait for the limiter.
	RateLimitWaits prometheus.Counter
}

// NewMetrics creates reminder metrics and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DeliveriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_deliveries_total",
				Help:      "Popped reminders by delivery outcome",
			},
			[]string{"outcome", "reason"},
		),

		PendingReminders: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminders_pending",
				Help:      "Current number of pending reminders",
			},
		),

		SendDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reminder_send_duration_seconds",
				Help:      "Time to deliver a reminder",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 15, 60},
			},
		),

		ScanDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reminder_scan_duration_seconds",
				Help:      "Time taken by one reminder scan",
				Buckets:   prometheus.DefBuckets,
			},
		),

		ScansSkipped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_scans_skipped_total",
				Help:      "Scans skipped because the previous one was still running",
			},
		),

		Retries: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_retries_total",
				Help:      "Total number of delivery retry attempts",
			},
		),

		RateLimitWaits: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_rate_limit_waits_total",
				Help:      "Total number of rate limit waits",
			},
		),
	}
}

// IncDelivery counts one delivery outcome.
func (m *Metrics) IncDelivery(outcome Outcome, reason string) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(string(outcome), reason).Inc()
}

// SetPending sets the current pending count.
func (m *Metrics) SetPending(n int64) {
	if m == nil {
		return
	}
	m.PendingReminders.Set(float64(n))
}

// ObserveSendDuration records the time taken to deliver a reminder.
func (m *Metrics) ObserveSendDuration(seconds float64) {
	if m == nil {
		return
	}
	m.SendDuration.Observe(seconds)
}

// ObserveScanDuration records the time taken by a scan.
func (m *Metrics) ObserveScanDuration(seconds float64) {
	if m == nil {
		return
	}
	m.ScanDuration.Observe(seconds)
}

// IncScansSkipped increments the skipped scan counter.
func (m *Metrics) IncScansSkipped() {
	if m == nil {
		return
	}
	m.ScansSkipped.Inc()
}

// IncRetries increments the retry counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// IncRateLimitWaits increments the rate limit wait counter.
func (m *Metrics) IncRateLimitWaits() {
	if m == nil {
		return
	}
	m.RateLimitWaits.Inc()
}
