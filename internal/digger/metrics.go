package digger

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRunsTotal       = "digger_runs_total"
	MetricRunDuration     = "digger_run_duration_seconds"
	MetricHandlesTotal    = "digger_handles_total"
	MetricReportsTotal    = "digger_reports_total"
	MetricHandleDuration  = "digger_handle_duration_seconds"
	MetricTokenRefreshes  = "digger_token_refreshes_total"
	MetricHandlesResynced = "digger_handles_resynced_total"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Metrics counts orchestration outcomes. All methods are safe for
// concurrent use and do nothing on a nil receiver.
type Metrics struct {
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	handlesTotal    *prometheus.CounterVec
	reportsTotal    *prometheus.CounterVec
	handleDuration  *prometheus.HistogramVec
	tokenRefreshes  *prometheus.CounterVec
	handlesResynced *prometheus.CounterVec
}

// NewMetrics creates the collectors. They are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRunsTotal,
				Help: "Total number of scheduled digger runs by status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricRunDuration,
				Help:    "Histogram of digger run duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),
		handlesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricHandlesTotal,
				Help: "Total number of handle insight updates by platform and status",
			},
			[]string{"platform", "status"},
		),
		reportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricReportsTotal,
				Help: "Total number of platform report fetches by platform, report and status",
			},
			[]string{"platform", "report", "status"},
		),
		handleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHandleDuration,
				Help:    "Histogram of per handle update duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"platform"},
		),
		tokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTokenRefreshes,
				Help: "Total number of handle token refreshes by platform and status",
			},
			[]string{"platform", "status"},
		),
		handlesResynced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricHandlesResynced,
				Help: "Total number of handles created or updated by a resync, by platform and action",
			},
			[]string{"platform", "action"},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns every collector, for custom registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.runsTotal,
		m.runDuration,
		m.handlesTotal,
		m.reportsTotal,
		m.handleDuration,
		m.tokenRefreshes,
		m.handlesResynced,
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(seconds)
}

// ObserveHandle records one handle update.
func (m *Metrics) ObserveHandle(platform, status string, seconds float64) {
	if m == nil {
		return
	}
	m.handlesTotal.WithLabelValues(platform, status).Inc()
	m.handleDuration.WithLabelValues(platform).Observe(seconds)
}

// IncReport records one report fetch.
func (m *Metrics) IncReport(platform, report, status string) {
	if m == nil {
		return
	}
	m.reportsTotal.WithLabelValues(platform, report, status).Inc()
}

// IncTokenRefresh records one token refresh attempt.
func (m *Metrics) IncTokenRefresh(platform, status string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(platform, status).Inc()
}

// AddResynced records handles created or updated by a resync.
func (m *Metrics) AddResynced(platform, action string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.handlesResynced.WithLabelValues(platform, action).Add(float64(n))
}
