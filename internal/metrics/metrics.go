package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipreview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipreview_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipreview_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Pipeline metrics
var (
	PipelineStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipreview_pipeline_stage_total",
			Help: "Total number of processing stage runs",
		},
		[]string{"stage", "status"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipreview_pipeline_stage_duration_seconds",
			Help:    "Processing stage duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"stage"},
	)

	TranscriptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipreview_transcriptions_total",
			Help: "Total number of transcription outcomes",
		},
		[]string{"status"},
	)
)

// Worker metrics
var (
	WorkerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipreview_worker_queue_depth",
			Help: "Number of background tasks waiting for a worker",
		},
	)

	WorkerTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipreview_worker_tasks_total",
			Help: "Total number of finished background tasks",
		},
		[]string{"kind", "status"},
	)
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ObserveStage records one pipeline stage run that started at start.
func ObserveStage(stage string, start time.Time, err error) {
	PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	PipelineStageTotal.WithLabelValues(stage, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
