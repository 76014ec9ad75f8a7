// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package schedule

import (
	"maps"
	"sync"
	"sync/atomic"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// GraphOutcome is one graph's disposition within a batch.
type GraphOutcome string

const (
	OutcomePending   GraphOutcome = "pending"
	OutcomeCompleted GraphOutcome = "completed"
	OutcomeFailed    GraphOutcome = "failed"
)

// BatchStatus is the lifecycle state of a batch run.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
)

// SchedulableNode is one node lifted out of its graph into the batch pool.
// Dependencies may name nodes outside the pool; the scheduler ignores
// those edges.
type SchedulableNode struct {
	NodeID       string
	GraphID      string
	Type         graph.NodeType
	Dependencies []string
	Node         *graph.Node
	Graph        *graph.Graph
	CanvasMemory string
}

// BatchContext carries one batch run's identity and its shared mutable
// state: the cooperative cancel flag, the lifecycle status, and the
// per-graph outcome map.
type BatchContext struct {
	BatchID      string
	ExperimentID string
	GraphIDs     []string
	Force        bool

	cancelled atomic.Bool

	mu       sync.Mutex
	status   BatchStatus
	outcomes map[string]GraphOutcome
}

// NewBatchContext builds a pending context with every graph's outcome
// seeded to OutcomePending.
func NewBatchContext(batchID, experimentID string, graphIDs []string, force bool) *BatchContext {
	outcomes := make(map[string]GraphOutcome, len(graphIDs))
	for _, gid := range graphIDs {
		outcomes[gid] = OutcomePending
	}
	return &BatchContext{
		BatchID:      batchID,
		ExperimentID: experimentID,
		GraphIDs:     graphIDs,
		Force:        force,
		status:       BatchPending,
		outcomes:     outcomes,
	}
}

// Cancel requests a cooperative stop. Nodes already executing run to
// completion; nothing new dispatches afterwards.
func (c *BatchContext) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether a stop was requested.
func (c *BatchContext) Cancelled() bool {
	return c.cancelled.Load()
}

// Status returns the batch lifecycle state.
func (c *BatchContext) Status() BatchStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *BatchContext) setStatus(s BatchStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Outcomes returns a copy of the per-graph outcome map.
func (c *BatchContext) Outcomes() map[string]GraphOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.outcomes)
}

// Outcome returns one graph's outcome, or OutcomePending for unknown IDs.
func (c *BatchContext) Outcome(graphID string) GraphOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o, ok := c.outcomes[graphID]; ok {
		return o
	}
	return OutcomePending
}

func (c *BatchContext) setOutcome(graphID string, o GraphOutcome) {
	c.mu.Lock()
	c.outcomes[graphID] = o
	c.mu.Unlock()
}

// outcomeData renders the outcome map for a batch_completed event payload.
func (c *BatchContext) outcomeData() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.GraphIDs))
	for _, gid := range c.GraphIDs {
		o, ok := c.outcomes[gid]
		if !ok {
			o = OutcomePending
		}
		out[gid] = string(o)
	}
	return out
}

// FlattenGraphs lifts every node of every listed graph into one batch
// pool. Dependencies are restricted to nodes that made it into the pool,
// and each graph's nodes appear in dependency order so the pool order is
// deterministic. Graph IDs missing from graphs are skipped.
//
// canvasMemories carries per-graph project context for prompt assembly,
// keyed by graph ID; absent entries mean no context.
func FlattenGraphs(graphIDs []string, graphs map[string]*graph.Graph, canvasMemories map[string]string) []SchedulableNode {
	var pool []SchedulableNode
	for _, gid := range graphIDs {
		g := graphs[gid]
		if g == nil {
			continue
		}
		required := graph.RequiredNodes(g, g.NodeIDs())
		for _, nodeID := range graph.TopologicalSort(g) {
			if !required[nodeID] {
				continue
			}
			n := g.Node(nodeID)
			if n == nil {
				continue
			}
			var deps []string
			for _, dep := range g.Dependencies(nodeID) {
				if required[dep] {
					deps = append(deps, dep)
				}
			}
			pool = append(pool, SchedulableNode{
				NodeID:       nodeID,
				GraphID:      gid,
				Type:         n.Type,
				Dependencies: deps,
				Node:         n,
				Graph:        g,
				CanvasMemory: canvasMemories[gid],
			})
		}
	}
	return pool
}
