// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SimilarityComputations tracks per-game similarity computations by status
	SimilarityComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "similarity",
			Name:      "computations_total",
			Help:      "Total number of per-game similarity computations by status",
		},
		[]string{"status"},
	)

	// SimilarityEdgesWritten tracks precomputed edges written
	SimilarityEdgesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "similarity",
			Name:      "edges_written_total",
			Help:      "Total number of precomputed similarity edges written",
		},
	)

	// SimilarityDuration tracks similarity computation duration in seconds
	SimilarityDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "similarity",
			Name:      "duration_seconds",
			Help:      "Duration of similarity computations in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"scope"},
	)

	// EtlRecordsTotal tracks imported catalog records by outcome
	EtlRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "etl",
			Name:      "records_total",
			Help:      "Total number of catalog records processed by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// EtlPhaseDuration tracks pipeline phase duration in seconds
	EtlPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "etl",
			Name:      "phase_duration_seconds",
			Help:      "Duration of pipeline phases in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"phase", "status"},
	)

	// GamesMerged tracks merged duplicate games by strategy
	GamesMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "games_total",
			Help:      "Total number of duplicate games merged by strategy",
		},
		[]string{"strategy"},
	)

	// CacheLookups tracks similar-games cache lookups
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of similar-games cache lookups by result",
		},
		[]string{"result"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// GraphProjections tracks similarity edge projections into the graph store
	GraphProjections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "graph",
			Name:      "projections_total",
			Help:      "Total number of similarity projections into the graph store by status",
		},
		[]string{"status"},
	)

	// RedisOperationDuration tracks Redis operation duration
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"operation"},
	)

	// HTTPRequestDuration tracks API request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds by method, route and status",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordHTTPRequest records a served HTTP request
func RecordHTTPRequest(method, route string, status int, durationSeconds float64) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(durationSeconds)
}

// RecordEtlRecord records one imported catalog record outcome
func RecordEtlRecord(source, outcome string) {
	EtlRecordsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordEtlPhase records a pipeline phase run
func RecordEtlPhase(phase, status string, durationSeconds float64) {
	EtlPhaseDuration.WithLabelValues(phase, status).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	CacheLookups.WithLabelValues("miss").Inc()
}
