// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"context"

	"github.com/themariolinml/Pixel-Groove/services/engine/telemetry"
)

// Recorder adapts ExecutionMetrics to the engine's telemetry.Recorder seam
// so node samples feed Prometheus alongside any other sink. Combine with
// telemetry.Multi to fan samples out to InfluxDB as well.
type Recorder struct {
	metrics *ExecutionMetrics
}

// Compile-time check that Recorder satisfies the engine seam.
var _ telemetry.Recorder = (*Recorder)(nil)

// NewRecorder wraps m. A nil m uses DefaultMetrics, so InitMetrics must
// have been called first.
func NewRecorder(m *ExecutionMetrics) *Recorder {
	if m == nil {
		m = DefaultMetrics
	}
	return &Recorder{metrics: m}
}

// Record translates one node sample into counter and histogram updates.
// Skip samples carry no duration and count toward the execution and skip
// counters only.
func (r *Recorder) Record(_ context.Context, s telemetry.Sample) {
	r.metrics.NodeExecutionsTotal.WithLabelValues(string(s.NodeType), s.Status).Inc()
	if s.Status == telemetry.StatusSkipped {
		r.metrics.SkippedNodesTotal.WithLabelValues(string(s.NodeType)).Inc()
		return
	}
	r.metrics.NodeDurationSeconds.WithLabelValues(string(s.NodeType)).Observe(s.Duration.Seconds())
	if s.QueueWait > 0 {
		r.metrics.QueueWaitSeconds.WithLabelValues(string(s.NodeType)).Observe(s.QueueWait.Seconds())
	}
}
