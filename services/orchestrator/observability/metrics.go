// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the server.
//
// # Description
//
// This package implements Prometheus metrics for monitoring graph execution.
// Metrics include:
//   - Run counters (single-graph executions and experiment batches)
//   - Node execution counters and duration histograms by node type
//   - Queue wait histograms (scheduler slot contention by node type)
//   - Event counters for the SSE and WebSocket progress streams
//   - Active run and stream client gauges
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting. Node-level samples arrive through
// the engine's telemetry.Recorder seam; see Recorder in this package.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "pixelgroove"

// Subsystem for engine metrics
const engineSubsystem = "engine"

// ExecutionMetrics holds all Prometheus metrics for graph execution.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring run throughput,
// node latency, and stream delivery. Initialize once at startup via
// InitMetrics().
//
// # Fields
//
//   - RunsTotal: Counter of started runs by kind
//   - NodeExecutionsTotal: Counter of node outcomes by node type and status
//   - NodeDurationSeconds: Histogram of backend call duration per node type
//   - QueueWaitSeconds: Histogram of time spent waiting for a scheduler slot
//   - SkippedNodesTotal: Counter of nodes reused from cached results
//   - EventsEmittedTotal: Counter of progress events delivered to clients
//   - StreamClientsActive: Gauge of connected SSE/WebSocket subscribers
//
// # Thread Safety
//
// All operations are thread-safe.
type ExecutionMetrics struct {
	// RunsTotal counts started runs by kind.
	// Labels: kind (execution, batch)
	RunsTotal *prometheus.CounterVec

	// NodeExecutionsTotal counts node outcomes by type and status.
	// Labels: node_type (generate_text, generate_image, ...), status
	// (completed, failed, skipped)
	NodeExecutionsTotal *prometheus.CounterVec

	// NodeDurationSeconds measures backend call duration per node type.
	// Labels: node_type
	NodeDurationSeconds *prometheus.HistogramVec

	// QueueWaitSeconds measures time between dispatch and slot acquisition.
	// Labels: node_type
	QueueWaitSeconds *prometheus.HistogramVec

	// SkippedNodesTotal counts nodes whose cached result was reused.
	// Labels: node_type
	SkippedNodesTotal *prometheus.CounterVec

	// EventsEmittedTotal counts progress events written to subscribers.
	// Labels: event_type (node_started, node_completed, ...)
	EventsEmittedTotal *prometheus.CounterVec

	// StreamClientsActive tracks connected progress-stream subscribers.
	// Labels: transport (sse, websocket)
	StreamClientsActive *prometheus.GaugeVec
}

// DefaultMetrics is the singleton instance of ExecutionMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ExecutionMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup, after the Prometheus registry is available.
//
// # Outputs
//
//   - *ExecutionMetrics: The initialized metrics instance.
//
// # Examples
//
//	func main() {
//	    observability.InitMetrics()
//	    // ... start server ...
//	}
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
//
// # Assumptions
//
//   - Prometheus default registry is available.
func InitMetrics() *ExecutionMetrics {
	DefaultMetrics = &ExecutionMetrics{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "runs_total",
				Help:      "Total number of started runs by kind",
			},
			[]string{"kind"},
		),

		NodeExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "node_executions_total",
				Help:      "Total node outcomes by node type and status",
			},
			[]string{"node_type", "status"},
		),

		NodeDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "node_duration_seconds",
				Help:      "Generative backend call duration per node type",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"node_type"},
		),

		QueueWaitSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "queue_wait_seconds",
				Help:      "Time between node dispatch and scheduler slot acquisition",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"node_type"},
		),

		SkippedNodesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "skipped_nodes_total",
				Help:      "Total nodes skipped because a fresh cached result existed",
			},
			[]string{"node_type"},
		),

		EventsEmittedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "events_emitted_total",
				Help:      "Total progress events delivered to stream subscribers",
			},
			[]string{"event_type"},
		),

		StreamClientsActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "stream_clients_active",
				Help:      "Number of connected progress-stream subscribers",
			},
			[]string{"transport"},
		),
	}

	return DefaultMetrics
}

// ObserveActiveRuns registers a gauge reporting the number of registered
// runs of one kind. count is called at scrape time and must be safe for
// concurrent use.
func ObserveActiveRuns(kind RunKind, count func() float64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Subsystem:   engineSubsystem,
		Name:        "active_runs",
		Help:        "Number of registered runs by kind",
		ConstLabels: prometheus.Labels{"kind": string(kind)},
	}, count)
}

// =============================================================================
// Run Kinds
// =============================================================================

// RunKind labels a run for metrics as single-graph or batch.
type RunKind string

const (
	// RunKindExecution is a single-graph run.
	RunKindExecution RunKind = "execution"

	// RunKindBatch is a multi-graph experiment batch.
	RunKindBatch RunKind = "batch"
)

// =============================================================================
// Transports
// =============================================================================

// Transport labels a progress-stream delivery channel for metrics.
type Transport string

const (
	// TransportSSE is the Server-Sent Events stream.
	TransportSSE Transport = "sse"

	// TransportWebSocket is the WebSocket mirror stream.
	TransportWebSocket Transport = "websocket"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRun records a started run.
//
// # Inputs
//
//   - kind: Whether this is a single-graph execution or a batch.
func (m *ExecutionMetrics) RecordRun(kind RunKind) {
	m.RunsTotal.WithLabelValues(string(kind)).Inc()
}

// RecordEvent records one progress event delivered to a subscriber.
//
// # Inputs
//
//   - eventType: The wire event_type value.
func (m *ExecutionMetrics) RecordEvent(eventType string) {
	m.EventsEmittedTotal.WithLabelValues(eventType).Inc()
}

// StreamOpened increments the active subscriber gauge.
//
// # Inputs
//
//   - transport: The delivery channel the client connected on.
func (m *ExecutionMetrics) StreamOpened(transport Transport) {
	m.StreamClientsActive.WithLabelValues(string(transport)).Inc()
}

// StreamClosed decrements the active subscriber gauge.
//
// # Inputs
//
//   - transport: The delivery channel the client disconnected from.
func (m *ExecutionMetrics) StreamClosed(transport Transport) {
	m.StreamClientsActive.WithLabelValues(string(transport)).Dec()
}
