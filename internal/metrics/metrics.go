// Package metrics provides Prometheus metrics for the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Download job metrics
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_jobs_total",
			Help: "Download jobs by terminal state",
		},
		[]string{"kind", "state"},
	)

	JobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_jobs_active",
			Help: "Download jobs currently running",
		},
		[]string{"kind"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_job_duration_seconds",
			Help:    "Time from fetch to terminal state",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		},
		[]string{"kind", "state"},
	)

	// Data metrics
	RecordsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_records_committed_total",
			Help: "Records normalized and upserted",
		},
		[]string{"kind"},
	)

	BytesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_bytes_fetched_total",
			Help: "Dump bytes read from the remote source",
		},
		[]string{"kind"},
	)

	// Remote fetch metrics
	FetchResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_fetch_responses_total",
			Help: "Remote dump responses by HTTP status code",
		},
		[]string{"kind", "code"},
	)

	// Bulk run metrics
	BulkRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_bulk_runs_total",
			Help: "Bulk runs by outcome",
		},
		[]string{"state"},
	)

	// Errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_errors_total",
			Help: "Ingestion failures by category",
		},
		[]string{"kind", "type"},
	)
)
