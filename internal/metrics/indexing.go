package metrics

import "github.com/prometheus/client_golang/prometheus"

// Sync and search Prometheus metrics.
var (
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notedex",
			Name:      "sync_runs_total",
			Help:      "Total number of sync runs by planning decision",
		},
		[]string{"decision"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "notedex",
			Name:      "sync_duration_seconds",
			Help:      "Executed sync run duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
	)

	SyncUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notedex",
			Name:      "sync_units_total",
			Help:      "Total source units handled by sync runs",
		},
		[]string{"result"},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notedex",
			Name:      "search_requests_total",
			Help:      "Total number of search requests",
		},
		[]string{"status"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "notedex",
			Name:      "search_duration_seconds",
			Help:      "Search request duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

var indexingMetricsRegistered bool

// RegisterIndexingMetrics registers sync and search metrics. Must be called once from main.
func RegisterIndexingMetrics() {
	if indexingMetricsRegistered {
		return
	}
	prometheus.MustRegister(SyncRunsTotal)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(SyncUnitsTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	indexingMetricsRegistered = true
}
