// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package runs is the operations layer over the execution engine. It starts
// single-graph runs and batches, keeps a registry of the active ones, drives
// each in a background goroutine that forwards engine events into a per-run
// queue, and persists graph state at the engine's save points. Callers stream
// a run's events by ID or request cancellation; a run stays streamable after
// it finishes until a consumer drains its queue.
package runs

import (
	"context"
	"fmt"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// GraphStore is the persistence surface the run drivers load from and save
// results back to.
type GraphStore interface {
	Load(ctx context.Context, id string) (*graph.Graph, error)
	Save(ctx context.Context, g *graph.Graph) error
}

// ExecutionNotFoundError is returned when streaming an execution that is not
// registered.
type ExecutionNotFoundError struct {
	ExecutionID string
}

func (e *ExecutionNotFoundError) Error() string {
	return fmt.Sprintf("execution %s not found", e.ExecutionID)
}

// BatchNotFoundError is returned when streaming a batch that is not
// registered.
type BatchNotFoundError struct {
	BatchID string
}

func (e *BatchNotFoundError) Error() string {
	return fmt.Sprintf("batch %s not found", e.BatchID)
}
