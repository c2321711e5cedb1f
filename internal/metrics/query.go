package metrics

import "github.com/prometheus/client_golang/prometheus"

// Index query Prometheus metrics.
var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resdex",
			Name:      "index_query_duration_seconds",
			Help:      "Index query duration in seconds, retries included",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind", "mode", "status"},
	)

	QueryRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resdex",
			Name:      "index_query_retries_total",
			Help:      "Index queries retried after a transient backend failure",
		},
		[]string{"kind"},
	)

	QueryResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resdex",
			Name:      "index_query_results_total",
			Help:      "Rows returned by index queries",
		},
		[]string{"kind"},
	)
)

var queryMetricsRegistered bool

// RegisterQueryMetrics registers index query metrics. Must be called once from main.
func RegisterQueryMetrics() {
	if queryMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryRetriesTotal)
	prometheus.MustRegister(QueryResultsTotal)
	queryMetricsRegistered = true
}
