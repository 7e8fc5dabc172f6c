package pipeline

import "github.com/prometheus/client_golang/prometheus"

var (
	customersUpserted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reports_pipeline",
		Subsystem: "sync",
		Name:      "customers_upserted_total",
		Help:      "Number of customer records upserted into the dimension table.",
	})

	malformedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reports_pipeline",
		Subsystem: "sync",
		Name:      "malformed_records_total",
		Help:      "Number of CRM records skipped for missing identity.",
	})

	joinMissCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reports_pipeline",
		Subsystem: "rebuild",
		Name:      "join_misses_total",
		Help:      "Number of rollup rows emitted without a matching dimension row.",
	})

	rollupRowsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reports_pipeline",
		Subsystem: "rebuild",
		Name:      "rows_written_total",
		Help:      "Number of daily rollup rows written across all rebuilds.",
	})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reports_pipeline",
		Subsystem: "run",
		Name:      "duration_seconds",
		Help:      "Time spent on one full sync plus rebuild cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	runsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reports_pipeline",
		Subsystem: "run",
		Name:      "failed_total",
		Help:      "Number of pipeline runs aborted by a component failure.",
	})
)

func init() {
	prometheus.MustRegister(customersUpserted, malformedCounter, joinMissCounter, rollupRowsWritten, runDuration, runsFailed)
}
