// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph holds the executable artifact of the engine: a DAG of typed
// nodes connected through ports, plus the invariants a graph must satisfy
// before execution (acyclicity, port compatibility) and the staleness rule
// that decides which cached results survive a mutation.
package graph

import (
	"fmt"
	"sort"
	"time"
)

// Edge is a directional connection from one node's output port to another
// node's input port. Its ID is deterministic so re-adding the same connection
// is observable as a duplicate.
type Edge struct {
	ID         string `json:"id"`
	FromNodeID string `json:"from_node_id"`
	FromPortID string `json:"from_port_id"`
	ToNodeID   string `json:"to_node_id"`
	ToPortID   string `json:"to_port_id"`
}

// EdgeID derives the deterministic edge identity from its four endpoints.
func EdgeID(fromNodeID, fromPortID, toNodeID, toPortID string) string {
	return fmt.Sprintf("%s:%s->%s:%s", fromNodeID, fromPortID, toNodeID, toPortID)
}

// Graph is a DAG of nodes and edges.
//
// CanvasMemory is free-form context text prepended to every node's prompt
// while the graph executes. Nodes are keyed by ID; edges keep insertion
// order. Mutating methods uphold the invariants from the package doc and
// apply the staleness rule; they do not persist, the caller saves the graph
// through a repository.
type Graph struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	CanvasMemory string           `json:"canvas_memory"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Nodes        map[string]*Node `json:"nodes"`
	Edges        []*Edge          `json:"edges"`
	ExperimentID string           `json:"experiment_id,omitempty"`
}

// New creates an empty graph.
func New(id, name string) *Graph {
	now := time.Now().UTC()
	return &Graph{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Nodes:     map[string]*Node{},
	}
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(nodeID string) *Node {
	return g.Nodes[nodeID]
}

// NodeIDs returns all node IDs in lexicographic order. Map iteration order
// is not stable in Go, so every traversal that must be deterministic starts
// from this slice.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddNode inserts (or replaces) a node.
func (g *Graph) AddNode(n *Node) {
	g.Nodes[n.ID] = n
	g.touch()
}

// RemoveNode deletes a node together with every incident edge and marks all
// of its former downstream nodes stale. Unknown IDs are a no-op.
func (g *Graph) RemoveNode(nodeID string) {
	if _, ok := g.Nodes[nodeID]; !ok {
		return
	}
	downstream := g.DownstreamNodes(nodeID)
	delete(g.Nodes, nodeID)
	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if e.FromNodeID != nodeID && e.ToNodeID != nodeID {
			kept = append(kept, e)
		}
	}
	g.Edges = kept
	for _, id := range downstream {
		g.MarkStale(id)
	}
	g.touch()
}

// AddEdge validates and inserts the connection described by the four
// endpoint IDs.
//
// Contract: returns NodeNotFoundError / PortNotFoundError when an endpoint
// is absent, PortIncompatibleError when the port types cannot connect,
// CycleDetectedError when the insertion would close a directed cycle.
// Re-adding an identical edge is a no-op that returns the existing edge.
// On success the target node is marked stale: gaining an input is a
// content-affecting change.
func (g *Graph) AddEdge(fromNodeID, fromPortID, toNodeID, toPortID string) (*Edge, error) {
	fromNode := g.Node(fromNodeID)
	if fromNode == nil {
		return nil, &NodeNotFoundError{GraphID: g.ID, NodeID: fromNodeID}
	}
	toNode := g.Node(toNodeID)
	if toNode == nil {
		return nil, &NodeNotFoundError{GraphID: g.ID, NodeID: toNodeID}
	}
	fromPort := fromNode.OutputPort(fromPortID)
	if fromPort == nil {
		return nil, &PortNotFoundError{NodeID: fromNodeID, PortID: fromPortID}
	}
	toPort := toNode.InputPort(toPortID)
	if toPort == nil {
		return nil, &PortNotFoundError{NodeID: toNodeID, PortID: toPortID}
	}
	if !fromPort.CompatibleWith(toPort) {
		return nil, &PortIncompatibleError{FromPortType: fromPort.PortType, ToPortType: toPort.PortType}
	}

	id := EdgeID(fromNodeID, fromPortID, toNodeID, toPortID)
	if existing := g.Edge(id); existing != nil {
		return existing, nil
	}
	if g.wouldCreateCycle(fromNodeID, toNodeID) {
		return nil, &CycleDetectedError{FromNodeID: fromNodeID, ToNodeID: toNodeID}
	}

	edge := &Edge{
		ID:         id,
		FromNodeID: fromNodeID,
		FromPortID: fromPortID,
		ToNodeID:   toNodeID,
		ToPortID:   toPortID,
	}
	g.Edges = append(g.Edges, edge)
	g.MarkStale(toNodeID)
	g.touch()
	return edge, nil
}

// SetCanvasMemory replaces the shared context text. Canvas memory feeds
// every node's prompt, so every node holding a cached result is marked
// stale. Setting the same text again changes nothing.
func (g *Graph) SetCanvasMemory(text string) {
	if text == g.CanvasMemory {
		return
	}
	g.CanvasMemory = text
	for _, n := range g.Nodes {
		if n.Result != nil {
			n.Stale = true
		}
	}
	g.touch()
}

// Edge returns the edge with the given ID, or nil.
func (g *Graph) Edge(edgeID string) *Edge {
	for _, e := range g.Edges {
		if e.ID == edgeID {
			return e
		}
	}
	return nil
}

// RemoveEdge deletes the edge and marks its former target stale: losing an
// input is as content-affecting as gaining one. Unknown IDs return
// EdgeNotFoundError.
func (g *Graph) RemoveEdge(edgeID string) error {
	for i, e := range g.Edges {
		if e.ID == edgeID {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			g.MarkStale(e.ToNodeID)
			g.touch()
			return nil
		}
	}
	return &EdgeNotFoundError{GraphID: g.ID, EdgeID: edgeID}
}

// IncomingEdges returns all edges whose target is nodeID, in insertion order.
func (g *Graph) IncomingEdges(nodeID string) []*Edge {
	var in []*Edge
	for _, e := range g.Edges {
		if e.ToNodeID == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// Dependencies returns the source node IDs of every edge targeting nodeID.
func (g *Graph) Dependencies(nodeID string) []string {
	var deps []string
	for _, e := range g.Edges {
		if e.ToNodeID == nodeID {
			deps = append(deps, e.FromNodeID)
		}
	}
	return deps
}

// DownstreamNodes walks edges forward (BFS) and returns every node ID
// reachable from nodeID, excluding nodeID itself.
func (g *Graph) DownstreamNodes(nodeID string) []string {
	visited := map[string]bool{}
	queue := []string{nodeID}
	var order []string
	for len(queue) > 0 {
		nid := queue[0]
		queue = queue[1:]
		if visited[nid] {
			continue
		}
		visited[nid] = true
		if nid != nodeID {
			order = append(order, nid)
		}
		for _, e := range g.Edges {
			if e.FromNodeID == nid {
				queue = append(queue, e.ToNodeID)
			}
		}
	}
	return order
}

// MarkStale raises the stale flag on the node and on every transitively
// downstream node. Stale nodes are never skipped by the executor.
func (g *Graph) MarkStale(nodeID string) {
	if n := g.Node(nodeID); n != nil {
		n.Stale = true
	}
	for _, id := range g.DownstreamNodes(nodeID) {
		if n := g.Node(id); n != nil {
			n.Stale = true
		}
	}
}

// wouldCreateCycle runs a DFS over the current adjacency plus the
// prospective edge and reports whether any back edge exists.
func (g *Graph) wouldCreateCycle(fromNodeID, toNodeID string) bool {
	adj := map[string][]string{}
	for id := range g.Nodes {
		adj[id] = nil
	}
	for _, e := range g.Edges {
		adj[e.FromNodeID] = append(adj[e.FromNodeID], e.ToNodeID)
	}
	adj[fromNodeID] = append(adj[fromNodeID], toNodeID)

	visited := map[string]bool{}
	recStack := map[string]bool{}

	var visit func(string) bool
	visit = func(nid string) bool {
		visited[nid] = true
		recStack[nid] = true
		for _, next := range adj[nid] {
			if !visited[next] {
				if visit(next) {
					return true
				}
			} else if recStack[next] {
				return true
			}
		}
		recStack[nid] = false
		return false
	}

	for _, nid := range g.NodeIDs() {
		if !visited[nid] {
			if visit(nid) {
				return true
			}
		}
	}
	return false
}

func (g *Graph) touch() {
	g.UpdatedAt = time.Now().UTC()
}
