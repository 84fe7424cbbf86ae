package searchcache

import "github.com/prometheus/client_golang/prometheus"

// Metric names.
const (
	MetricLookups     = "search_cache_lookups_total"
	MetricErrors      = "search_cache_errors_total"
	MetricUpstreamErr = "search_upstream_errors_total"
)

// Lookup results used as the result label.
const (
	ResultHit  = "hit"
	ResultMiss = "miss"
)

// Metrics holds Prometheus collectors for the search cache.
type Metrics struct {
	lookups     *prometheus.CounterVec
	errors      *prometheus.CounterVec
	upstreamErr prometheus.Counter
}

// NewMetrics creates unregistered search cache metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricLookups,
				Help: "Search cache lookups by result",
			},
			[]string{"result"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricErrors,
				Help: "Search cache backend errors by operation; the cache is bypassed",
			},
			[]string{"op"},
		),
		upstreamErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricUpstreamErr,
			Help: "Failed searches against the YouTube API",
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
	return []prometheus.Collector{m.lookups, m.errors, m.upstreamErr}
}

func (m *Metrics) lookup(result string) {
	if m != nil {
		m.lookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) cacheError(op string) {
	if m != nil {
		m.errors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) upstreamError() {
	if m != nil {
		m.upstreamErr.Inc()
	}
}
