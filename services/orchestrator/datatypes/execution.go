// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains request and response types for run and batch
// endpoints.
package datatypes

// ExecuteGraphRequest starts a single-graph run. Empty OutputNodeIDs means
// every node in the graph; Force reruns nodes that hold fresh cached
// results.
type ExecuteGraphRequest struct {
	OutputNodeIDs []string `json:"output_node_ids"`
	Force         bool     `json:"force"`
}

// ExecuteGraphResponse hands back the run handle and where to stream it.
type ExecuteGraphResponse struct {
	ExecutionID string `json:"execution_id"`
	StreamURL   string `json:"stream_url"`
}

// BatchExecuteRequest starts a batch over an experiment's graphs. Empty
// GraphIDs means the graphs of the experiment's selected hooks.
type BatchExecuteRequest struct {
	GraphIDs []string `json:"graph_ids"`
	Force    bool     `json:"force"`
}

// BatchExecuteResponse hands back the batch handle and where to stream it.
type BatchExecuteResponse struct {
	BatchID   string `json:"batch_id"`
	StreamURL string `json:"stream_url"`
}
