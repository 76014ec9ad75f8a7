// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains request and response types for graph, node, and edge
// endpoints. Execution DTOs live in execution.go, experiment DTOs in
// experiments.go.
package datatypes

import (
	"time"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// CreateGraphRequest creates an empty graph.
type CreateGraphRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	CanvasMemory string `json:"canvas_memory" validate:"maxbytes"`
}

// Validate checks the request against its validation tags.
func (r *CreateGraphRequest) Validate() error {
	return validate.Struct(r)
}

// UpdateGraphRequest renames a graph or replaces its canvas memory. Nil
// fields are left unchanged. A canvas memory change marks every node with
// a cached result stale.
type UpdateGraphRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=200"`
	CanvasMemory *string `json:"canvas_memory" validate:"omitempty,maxbytes"`
}

// Validate checks the request against its validation tags.
func (r *UpdateGraphRequest) Validate() error {
	return validate.Struct(r)
}

// GraphSummary is the list-view projection of a graph.
type GraphSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	NodeCount    int       `json:"node_count"`
	EdgeCount    int       `json:"edge_count"`
	ExperimentID string    `json:"experiment_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewGraphSummary projects one graph into its list entry.
func NewGraphSummary(g *graph.Graph) GraphSummary {
	return GraphSummary{
		ID:           g.ID,
		Name:         g.Name,
		NodeCount:    len(g.Nodes),
		EdgeCount:    len(g.Edges),
		ExperimentID: g.ExperimentID,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

// CreateNodeRequest adds a node to a graph. Position defaults to the
// canvas origin.
type CreateNodeRequest struct {
	Type     string          `json:"type" validate:"required,nodetype"`
	Label    string          `json:"label" validate:"max=200"`
	Params   map[string]any  `json:"params"`
	Position *graph.Position `json:"position"`
}

// Validate checks the request against its validation tags.
func (r *CreateNodeRequest) Validate() error {
	return validate.Struct(r)
}

// UpdateNodeRequest patches a node. Nil fields are left unchanged. A
// params replacement marks the node and its downstream stale; a prompt
// change additionally sets human_edited.
type UpdateNodeRequest struct {
	Label    *string         `json:"label" validate:"omitempty,max=200"`
	Params   map[string]any  `json:"params"`
	Position *graph.Position `json:"position"`
}

// Validate checks the request against its validation tags.
func (r *UpdateNodeRequest) Validate() error {
	return validate.Struct(r)
}

// CreateEdgeRequest connects an output port to an input port.
type CreateEdgeRequest struct {
	FromNodeID string `json:"from_node_id" validate:"required"`
	FromPortID string `json:"from_port_id" validate:"required"`
	ToNodeID   string `json:"to_node_id" validate:"required"`
	ToPortID   string `json:"to_port_id" validate:"required"`
}

// Validate checks the request against its validation tags.
func (r *CreateEdgeRequest) Validate() error {
	return validate.Struct(r)
}
