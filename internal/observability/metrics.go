package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncCursorGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reports_pipeline",
		Subsystem: "sync",
		Name:      "cursor_timestamp_seconds",
		Help:      "Unix timestamp of the dimension sync watermark.",
	})
	lastRunGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reports_pipeline",
		Subsystem: "run",
		Name:      "last_completed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful pipeline run.",
	})
)

func init() {
	prometheus.MustRegister(syncCursorGauge, lastRunGauge)
}

// RecordSyncCursor updates the watermark gauge.
func RecordSyncCursor(ts time.Time) {
	if ts.IsZero() {
		return
	}
	syncCursorGauge.Set(float64(ts.Unix()))
}

// RecordRunCompleted updates the last successful run gauge.
func RecordRunCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastRunGauge.Set(float64(ts.Unix()))
}
