// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectorRequestsTotal tracks outbound connector requests by status class
	ConnectorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "connector",
			Name:      "requests_total",
			Help:      "Total number of outbound connector request attempts",
		},
		[]string{"connector_id", "method", "status_class"},
	)

	// ConnectorRequestDuration tracks outbound connector request duration
	ConnectorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "connector",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound connector requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"connector_id"},
	)

	// ConnectorRetriesTotal tracks retried connector requests
	ConnectorRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "connector",
			Name:      "retries_total",
			Help:      "Total number of connector request retries",
		},
		[]string{"connector_id", "kind"},
	)

	// RateLimitRejections tracks requests refused by the local rate limiter
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Total number of requests refused by the rate limiter",
		},
		[]string{"connector_id"},
	)

	// SyncRunsTotal tracks sync runs by outcome
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by outcome",
		},
		[]string{"entity_type", "status"},
	)

	// SyncDuration tracks sync run duration
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"entity_type"},
	)

	// SyncRecordsTotal tracks synced records by outcome
	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Total number of synced records by outcome",
		},
		[]string{"entity_type", "outcome"},
	)

	// UploadRowsTotal tracks uploaded rows by outcome
	UploadRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "upload",
			Name:      "rows_total",
			Help:      "Total number of uploaded rows by outcome",
		},
		[]string{"entity_type", "outcome"},
	)

	// RetentionDeletedTotal tracks connector logs removed by the retention janitor
	RetentionDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "retention",
			Name:      "connector_logs_deleted_total",
			Help:      "Total number of connector logs deleted by retention",
		},
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
)

// StatusClass buckets a status code as "2xx", "4xx", ... and 0 as "network".
func StatusClass(status int) string {
	if status <= 0 {
		return "network"
	}
	return string(rune('0'+status/100)) + "xx"
}

// RecordConnectorRequest records one outbound request attempt
func RecordConnectorRequest(connectorID, method string, status int, durationSeconds float64) {
	ConnectorRequestsTotal.WithLabelValues(connectorID, method, StatusClass(status)).Inc()
	ConnectorRequestDuration.WithLabelValues(connectorID).Observe(durationSeconds)
}

func RecordRetry(connectorID, kind string) {
	ConnectorRetriesTotal.WithLabelValues(connectorID, kind).Inc()
}

func RecordRateLimitRejection(connectorID string) {
	RateLimitRejections.WithLabelValues(connectorID).Inc()
}

// RecordSync records a finished sync run and its record counts
func RecordSync(entityType string, success bool, inserted, updated, skipped int, durationSeconds float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	SyncRunsTotal.WithLabelValues(entityType, status).Inc()
	SyncDuration.WithLabelValues(entityType).Observe(durationSeconds)
	SyncRecordsTotal.WithLabelValues(entityType, "inserted").Add(float64(inserted))
	SyncRecordsTotal.WithLabelValues(entityType, "updated").Add(float64(updated))
	SyncRecordsTotal.WithLabelValues(entityType, "skipped").Add(float64(skipped))
}

// RecordUpload records the row outcomes of one upload
func RecordUpload(entityType string, inserted, failed int) {
	UploadRowsTotal.WithLabelValues(entityType, "inserted").Add(float64(inserted))
	UploadRowsTotal.WithLabelValues(entityType, "failed").Add(float64(failed))
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
