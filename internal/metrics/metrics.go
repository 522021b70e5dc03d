package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal tracks finished jobs per provider and terminal state
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_jobs_total",
			Help: "Total number of finished collection jobs",
		},
		[]string{"provider", "state"},
	)

	// JobsRunning tracks currently running jobs per provider
	JobsRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricewatch_jobs_running",
			Help: "Number of collection jobs currently running",
		},
		[]string{"provider"},
	)

	// RecordsProcessed tracks records accepted by the reconciliation pipeline
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_records_processed_total",
			Help: "Total number of records processed",
		},
		[]string{"provider"},
	)

	// RecordsSkipped tracks records dropped for parse or validation reasons
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_records_skipped_total",
			Help: "Total number of records skipped",
		},
		[]string{"provider", "reason"},
	)

	// FetchErrorsTotal tracks classified adapter failures
	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_fetch_errors_total",
			Help: "Total number of adapter fetch errors",
		},
		[]string{"provider", "kind"},
	)

	// FetchLatency tracks adapter batch fetch latency
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewatch_fetch_latency_seconds",
			Help:    "Adapter batch fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// OutliersDetected tracks observations flagged by price validation
	OutliersDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_outliers_detected_total",
			Help: "Total number of observations flagged as outliers",
		},
		[]string{"provider"},
	)

	// EntitiesMerged tracks dedup merge decisions
	EntitiesMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_entities_merged_total",
			Help: "Total number of entities merged during dedup",
		},
		[]string{"action"},
	)

	// DBBatchSize tracks write batch sizes per operation
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewatch_db_batch_size",
			Help:    "Number of rows written per batch operation",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
		},
		[]string{"operation"},
	)

	// EventsPublished tracks events pushed to the event surface
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_events_published_total",
			Help: "Total number of events published",
		},
		[]string{"channel"},
	)

	// AlertsRaised tracks raised system alerts per severity
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_alerts_raised_total",
			Help: "Total number of system alerts raised",
		},
		[]string{"severity", "component"},
	)
)
