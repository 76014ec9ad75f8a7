// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry ships per-node execution measurements to a time-series
// sink. Recording is fire-and-forget: a sink failure is logged and the
// sample dropped, never surfacing into the run.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// Sample statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Sample is one node's terminal measurement.
type Sample struct {
	GraphID  string
	NodeID   string
	NodeType graph.NodeType
	Status   string

	// Duration covers resolve + enrichment + generation + upload.
	Duration time.Duration

	// QueueWait is the time between dispatch and semaphore acquisition.
	QueueWait time.Duration

	At time.Time
}

// Recorder accepts node execution samples.
type Recorder interface {
	Record(ctx context.Context, s Sample)
}

// Noop discards every sample. It is the default when no sink is configured.
type Noop struct{}

// Record implements Recorder.
func (Noop) Record(context.Context, Sample) {}

// Multi fans each sample out to every recorder in order.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ctx context.Context, s Sample) {
	for _, r := range m {
		r.Record(ctx, s)
	}
}

// InfluxRecorder writes samples as points in the node_execution measurement.
type InfluxRecorder struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	logger *slog.Logger
}

// NewInfluxRecorder connects to an InfluxDB v2 instance. The caller owns the
// recorder and must Close it on shutdown.
func NewInfluxRecorder(url, token, org, bucket string, logger *slog.Logger) *InfluxRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(url, token)
	return &InfluxRecorder{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
		logger: logger,
	}
}

// Record implements Recorder.
func (r *InfluxRecorder) Record(ctx context.Context, s Sample) {
	at := s.At
	if at.IsZero() {
		at = time.Now()
	}
	p := influxdb2.NewPoint(
		"node_execution",
		map[string]string{
			"node_type": string(s.NodeType),
			"status":    s.Status,
			"graph_id":  s.GraphID,
		},
		map[string]interface{}{
			"duration_ms":   s.Duration.Milliseconds(),
			"queue_wait_ms": s.QueueWait.Milliseconds(),
		},
		at,
	)
	if err := r.write.WritePoint(ctx, p); err != nil {
		r.logger.Warn("telemetry write failed, dropping sample",
			"node_id", s.NodeID, "node_type", string(s.NodeType), "error", err)
	}
}

// Close releases the underlying client.
func (r *InfluxRecorder) Close() {
	r.client.Close()
}
