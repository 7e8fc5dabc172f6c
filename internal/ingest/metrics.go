package ingest

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reports_pipeline",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Number of telemetry events inserted into the warehouse.",
	})

	decodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reports_pipeline",
		Subsystem: "ingest",
		Name:      "decode_errors_total",
		Help:      "Number of Kafka messages dropped as undecodable telemetry.",
	})

	insertErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reports_pipeline",
		Subsystem: "ingest",
		Name:      "insert_errors_total",
		Help:      "Number of warehouse insert failures; the message is redelivered.",
	})
)

func init() {
	prometheus.MustRegister(eventsIngested, decodeErrors, insertErrors)
}
