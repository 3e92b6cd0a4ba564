package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chat_relay"

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Streams are counted once per turn by terminal outcome.
	StreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "streams_total",
			Help:      "Relayed chat turns by outcome",
		},
		[]string{"outcome"},
	)

	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "stream_duration_seconds",
			Help:      "Wall time of a relayed turn from open to last frame",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "frames_total",
			Help:      "Upstream frames decoded, by event kind",
		},
		[]string{"kind"},
	)

	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "frames_dropped_total",
			Help:      "Upstream frames dropped before reaching the client",
		},
		[]string{"reason"},
	)

	PersistenceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed best-effort conversation writes",
		},
		[]string{"path"},
	)

	BackgroundTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_tasks_total",
			Help:      "Background tasks run by the worker pool",
		},
		[]string{"name", "result"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Attachment uploads by result",
		},
		[]string{"result"},
	)

	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Total attachment bytes stored",
		},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordStream records one finished turn
func RecordStream(outcome string, durationSec float64) {
	StreamsTotal.WithLabelValues(outcome).Inc()
	StreamDuration.WithLabelValues(outcome).Observe(durationSec)
}

// RecordFrame records a decoded upstream frame
func RecordFrame(kind string) {
	FramesTotal.WithLabelValues(kind).Inc()
}

// RecordDroppedFrame records a frame that never reached the client
func RecordDroppedFrame(reason string) {
	FramesDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordPersistenceFailure records a failed start- or end-of-turn write
func RecordPersistenceFailure(path string) {
	PersistenceFailuresTotal.WithLabelValues(path).Inc()
}

// RecordBackgroundTask records the result of a pooled task
func RecordBackgroundTask(name, result string) {
	BackgroundTasksTotal.WithLabelValues(name, result).Inc()
}

// RecordUpload records an attachment upload
func RecordUpload(result string, bytes int64) {
	UploadsTotal.WithLabelValues(result).Inc()
	if result == "success" && bytes > 0 {
		UploadBytesTotal.Add(float64(bytes))
	}
}
