// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

var _ Recorder = Noop{}
var _ Recorder = (*InfluxRecorder)(nil)

type captureWriteAPI struct {
	points []*write.Point
	err    error
}

func (c *captureWriteAPI) WriteRecord(_ context.Context, _ ...string) error { return c.err }

func (c *captureWriteAPI) WritePoint(_ context.Context, point ...*write.Point) error {
	if c.err != nil {
		return c.err
	}
	c.points = append(c.points, point...)
	return nil
}

func (c *captureWriteAPI) EnableBatching() {}

func (c *captureWriteAPI) Flush(context.Context) error { return nil }

func TestInfluxRecorder_WritesPoint(t *testing.T) {
	sink := &captureWriteAPI{}
	r := &InfluxRecorder{write: sink, logger: slog.Default()}

	at := time.Unix(1700000000, 0)
	r.Record(context.Background(), Sample{
		GraphID:   "g1",
		NodeID:    "n1",
		NodeType:  graph.NodeTypeGenerateVideo,
		Status:    StatusCompleted,
		Duration:  1500 * time.Millisecond,
		QueueWait: 250 * time.Millisecond,
		At:        at,
	})

	require.Len(t, sink.points, 1)
	p := sink.points[0]
	assert.Equal(t, "node_execution", p.Name())
	assert.Equal(t, at, p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "generate_video", tags["node_type"])
	assert.Equal(t, "completed", tags["status"])
	assert.Equal(t, "g1", tags["graph_id"])

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.EqualValues(t, 1500, fields["duration_ms"])
	assert.EqualValues(t, 250, fields["queue_wait_ms"])
}

func TestInfluxRecorder_SinkErrorIsDropped(t *testing.T) {
	sink := &captureWriteAPI{err: errors.New("bucket gone")}
	r := &InfluxRecorder{write: sink, logger: slog.Default()}

	r.Record(context.Background(), Sample{
		NodeType: graph.NodeTypeGenerateText,
		Status:   StatusFailed,
	})

	assert.Empty(t, sink.points)
}
