package watch

import "github.com/prometheus/client_golang/prometheus"

// Metric names.
const (
	MetricReportsTotal     = "watch_reports_total"
	MetricSecondsTotal     = "watch_seconds_total"
	MetricCompletionsTotal = "watch_completions_total"
	MetricMergedTotal      = "watch_reports_merged_total"
	MetricReportDuration   = "watch_report_duration_seconds"
)

// Report results used as the result label.
const (
	ResultOK       = "ok"
	ResultInvalid  = "invalid"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Metrics holds Prometheus collectors for watch accounting.
type Metrics struct {
	reports        *prometheus.CounterVec
	seconds        prometheus.Counter
	completions    prometheus.Counter
	merged         prometheus.Counter
	reportDuration prometheus.Histogram
}

// NewMetrics creates unregistered watch metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricReportsTotal,
				Help: "Watch time reports by result",
			},
			[]string{"result"},
		),
		seconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSecondsTotal,
			Help: "Seconds of watch time accepted",
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCompletionsTotal,
			Help: "Videos that crossed the completion threshold",
		}),
		merged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMergedTotal,
			Help: "Reports merged into an existing viewing session",
		}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricReportDuration,
			Help:    "Time to apply a watch time report",
			Buckets: prometheus.DefBuckets,
		}),
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

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.reports, m.seconds, m.completions, m.merged, m.reportDuration}
}

func (m *Metrics) observe(result string, seconds int64, merged, completed bool, took float64) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(result).Inc()
	m.reportDuration.Observe(took)
	if result != ResultOK {
		return
	}
	m.seconds.Add(float64(seconds))
	if merged {
		m.merged.Inc()
	}
	if completed {
		m.completions.Inc()
	}
}
