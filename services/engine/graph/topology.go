// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

// TopologicalSort returns node IDs in dependency order using Kahn's
// algorithm. Ties between equally-ready nodes resolve in lexicographic
// node-ID order so the result is stable for a given graph.
func TopologicalSort(g *Graph) []string {
	inDegree := map[string]int{}
	adj := map[string][]string{}
	for id := range g.Nodes {
		inDegree[id] = 0
	}
	for _, e := range g.Edges {
		adj[e.FromNodeID] = append(adj[e.FromNodeID], e.ToNodeID)
		inDegree[e.ToNodeID]++
	}

	var queue []string
	for _, id := range g.NodeIDs() {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(queue) > 0 {
		nid := queue[0]
		queue = queue[1:]
		order = append(order, nid)
		for _, next := range adj[nid] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order
}

// RequiredNodes walks backwards from the requested output nodes over
// dependency edges and returns the set of node IDs that must run to produce
// them.
func RequiredNodes(g *Graph, outputNodeIDs []string) map[string]bool {
	required := map[string]bool{}
	stack := append([]string(nil), outputNodeIDs...)
	for len(stack) > 0 {
		nid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if required[nid] {
			continue
		}
		required[nid] = true
		stack = append(stack, g.Dependencies(nid)...)
	}
	return required
}

// TopologicalLevels partitions the restricted sub-DAG into levels where
// level(n) = 1 + max(level(p)) over predecessors of n within nodeIDs, roots
// at level 0. nodeIDs must already be in dependency order (a filtered
// TopologicalSort result); edges leaving the restriction are ignored.
func TopologicalLevels(g *Graph, nodeIDs []string) [][]string {
	inSet := map[string]bool{}
	for _, id := range nodeIDs {
		inSet[id] = true
	}

	preds := map[string][]string{}
	for _, e := range g.Edges {
		if inSet[e.FromNodeID] && inSet[e.ToNodeID] {
			preds[e.ToNodeID] = append(preds[e.ToNodeID], e.FromNodeID)
		}
	}

	level := map[string]int{}
	maxLevel := 0
	for _, nid := range nodeIDs {
		l := 0
		for _, p := range preds[nid] {
			if level[p]+1 > l {
				l = level[p] + 1
			}
		}
		level[nid] = l
		if l > maxLevel {
			maxLevel = l
		}
	}

	grouped := make([][]string, maxLevel+1)
	for _, nid := range nodeIDs {
		grouped[level[nid]] = append(grouped[level[nid]], nid)
	}
	return grouped
}
