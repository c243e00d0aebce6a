// Package metrics provides Prometheus instrumentation for the clip review
// backend. All metrics are prefixed with "clipreview_".
//
// # HTTP Metrics
//
//   - HTTPRequestsTotal: requests by method, route and status
//   - HTTPRequestDuration: request latency by method and route
//   - HTTPRequestsInFlight: requests currently being served
//
// # Pipeline Metrics
//
//   - PipelineStageTotal: processing stage runs by stage and status
//   - PipelineStageDuration: processing stage latency by stage
//   - TranscriptionsTotal: transcription outcomes by status
//
// # Worker Metrics
//
//   - WorkerQueueDepth: tasks waiting for a free worker
//   - WorkerTasksTotal: finished background tasks by kind and status
//
// Metrics are served by promhttp at GET /metrics.
package metrics
