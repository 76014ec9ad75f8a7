// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Duplicate deep-copies the graph under a fresh identity.
//
// Every node is re-keyed to a new UUID; port and edge IDs are re-derived
// from the new node IDs so the copy satisfies the same structural
// invariants as the original. Results, history, params, and canvas memory
// are copied by value. Result URLs still point at the source nodes' media;
// the caller duplicates the stored blobs and rewrites URLs using the
// returned old→new node ID mapping. The copy drops any experiment
// backlink: a duplicate is a standalone graph.
func (g *Graph) Duplicate(name string) (*Graph, map[string]string, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to snapshot graph %s: %w", g.ID, err)
	}
	var dup Graph
	if err := json.Unmarshal(data, &dup); err != nil {
		return nil, nil, fmt.Errorf("failed to clone graph %s: %w", g.ID, err)
	}

	mapping := make(map[string]string, len(dup.Nodes))
	for oldID := range dup.Nodes {
		mapping[oldID] = uuid.New().String()
	}

	nodes := make(map[string]*Node, len(dup.Nodes))
	for oldID, n := range dup.Nodes {
		newID := mapping[oldID]
		n.ID = newID
		for _, p := range n.InputPorts {
			p.ID = InputPortID(newID, p.Name)
		}
		for _, p := range n.OutputPorts {
			p.ID = OutputPortID(newID, p.Name)
		}
		nodes[newID] = n
	}
	dup.Nodes = nodes

	for _, e := range dup.Edges {
		fromNew := mapping[e.FromNodeID]
		toNew := mapping[e.ToNodeID]
		// Port IDs embed the owning node ID as their prefix.
		e.FromPortID = strings.Replace(e.FromPortID, e.FromNodeID, fromNew, 1)
		e.ToPortID = strings.Replace(e.ToPortID, e.ToNodeID, toNew, 1)
		e.FromNodeID = fromNew
		e.ToNodeID = toNew
		e.ID = EdgeID(e.FromNodeID, e.FromPortID, e.ToNodeID, e.ToPortID)
	}

	now := time.Now().UTC()
	dup.ID = uuid.New().String()
	dup.Name = name
	dup.ExperimentID = ""
	dup.CreatedAt = now
	dup.UpdatedAt = now
	return &dup, mapping, nil
}
