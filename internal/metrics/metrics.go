package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essencelink_messages_total",
			Help: "Inbound messages by handler and acknowledgement outcome",
		},
		[]string{"handler", "outcome"}, // outcome: ack, nack_drop, nack_requeue
	)

	MessageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "essencelink_message_duration_seconds",
			Help:    "Time spent handling one inbound message, including backoff sleeps",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"handler"},
	)

	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essencelink_backend_requests_total",
			Help: "MediaHaven requests by operation and HTTP status (0 when unreachable)",
		},
		[]string{"operation", "status"},
	)

	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essencelink_retries_total",
			Help: "Retryable failures followed by a backoff sleep",
		},
		[]string{"operation"},
	)

	GetMetadataPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "essencelink_getmetadata_published_total",
			Help: "getMetadataRequest messages published after a successful link",
		},
	)
)

// RecordMessage records the outcome and duration of one handled message.
func RecordMessage(handler, outcome string, d time.Duration) {
	MessagesTotal.WithLabelValues(handler, outcome).Inc()
	MessageDuration.WithLabelValues(handler).Observe(d.Seconds())
}

// RecordBackendRequest records one MediaHaven call.
func RecordBackendRequest(operation string, status int) {
	BackendRequests.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

// RecordRetry records one retry of operation.
func RecordRetry(operation string) {
	Retries.WithLabelValues(operation).Inc()
}
