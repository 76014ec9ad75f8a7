// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package events defines the progress events emitted while a graph or a
// batch executes, and the per-run queue that carries them to subscribers.
package events

import "time"

// Type identifies what happened at one point of a run.
type Type string

const (
	// TypeStarted marks the beginning of a single-graph run.
	TypeStarted Type = "started"

	// TypeNodeStarted is emitted when a node transitions to running.
	TypeNodeStarted Type = "node_started"

	// TypeNodeSkipped is emitted when a node's cached result is reused
	// instead of executing it.
	TypeNodeSkipped Type = "node_skipped"

	// TypeNodeCompleted is emitted when a node finishes successfully. Its
	// data carries the media type and artifact URLs.
	TypeNodeCompleted Type = "node_completed"

	// TypeNodeFailed is emitted when a node's handler returns an error. Its
	// data carries the error text.
	TypeNodeFailed Type = "node_failed"

	// TypeCancelled terminates a run stopped by the user.
	TypeCancelled Type = "cancelled"

	// TypeCompleted terminates a successful single-graph run.
	TypeCompleted Type = "completed"

	// TypeFailed terminates a single-graph run after a node failure.
	TypeFailed Type = "failed"

	// TypeBatchStarted marks the beginning of a batch run.
	TypeBatchStarted Type = "batch_started"

	// TypeGraphCompleted is emitted when every node of one graph in a batch
	// has finished.
	TypeGraphCompleted Type = "graph_completed"

	// TypeGraphFailed is emitted when a node failure poisons its graph.
	TypeGraphFailed Type = "graph_failed"

	// TypeBatchCancelled terminates a batch stopped by the user.
	TypeBatchCancelled Type = "batch_cancelled"

	// TypeBatchCompleted terminates a batch. Its data carries the final
	// per-graph outcome map.
	TypeBatchCompleted Type = "batch_completed"
)

// Terminal reports whether t ends its run. After a terminal event the queue
// is closed and the run leaves the registry.
func (t Type) Terminal() bool {
	switch t {
	case TypeCancelled, TypeCompleted, TypeFailed, TypeBatchCancelled, TypeBatchCompleted:
		return true
	}
	return false
}

// Event is one progress record on the wire. ExecutionID is set for
// single-graph runs, BatchID for batches; GraphID appears on batch events
// that concern one member graph. Timestamp is Unix seconds.
type Event struct {
	ExecutionID string         `json:"execution_id,omitempty"`
	BatchID     string         `json:"batch_id,omitempty"`
	Type        Type           `json:"event_type"`
	Timestamp   int64          `json:"timestamp"`
	GraphID     string         `json:"graph_id,omitempty"`
	NodeID      string         `json:"node_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Run builds a single-graph execution event.
func Run(executionID string, t Type, nodeID string, data map[string]any) Event {
	return Event{
		ExecutionID: executionID,
		Type:        t,
		Timestamp:   time.Now().Unix(),
		NodeID:      nodeID,
		Data:        data,
	}
}

// Batch builds a batch execution event.
func Batch(batchID string, t Type, graphID, nodeID string, data map[string]any) Event {
	return Event{
		BatchID:   batchID,
		Type:      t,
		Timestamp: time.Now().Unix(),
		GraphID:   graphID,
		NodeID:    nodeID,
		Data:      data,
	}
}
