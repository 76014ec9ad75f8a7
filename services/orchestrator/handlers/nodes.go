// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/datatypes"
)

// CreateNode handles POST /graphs/:graph_id/nodes.
func CreateNode(repo GraphRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateNodeRequest
		if !bindAndValidate(c, &req) {
			return
		}

		ctx := c.Request.Context()
		g, err := repo.Load(ctx, c.Param("graph_id"))
		if err != nil {
			respondError(c, err)
			return
		}

		pos := graph.Position{}
		if req.Position != nil {
			pos = *req.Position
		}
		n := graph.NewNode(uuid.New().String(), graph.NodeType(req.Type), req.Label, req.Params, pos)
		g.AddNode(n)
		if err := repo.Save(ctx, g); err != nil {
			respondError(c, err)
			return
		}
		slog.Info("node created", "graph_id", g.ID, "node_id", n.ID, "type", n.Type)
		c.JSON(http.StatusCreated, n)
	}
}

// UpdateNode handles PATCH /graphs/:graph_id/nodes/:node_id.
//
// Position changes are cosmetic. A label or params change is a content
// change: it marks the node and its downstream stale. Params merge key by
// key, so a patch carrying only the prompt leaves flags like enrich
// untouched; when the prompt text itself changed the node is flagged
// human_edited so the enrichment pass honors the author's wording.
func UpdateNode(repo GraphRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.UpdateNodeRequest
		if !bindAndValidate(c, &req) {
			return
		}

		ctx := c.Request.Context()
		g, err := repo.Load(ctx, c.Param("graph_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		n := g.Node(c.Param("node_id"))
		if n == nil {
			respondError(c, &graph.NodeNotFoundError{GraphID: g.ID, NodeID: c.Param("node_id")})
			return
		}

		contentChanged := false
		if req.Label != nil && *req.Label != n.Label {
			n.Label = *req.Label
			contentChanged = true
		}
		if req.Position != nil {
			n.Position = *req.Position
		}
		if req.Params != nil {
			oldPrompt := n.Prompt()
			if n.Params == nil {
				n.Params = map[string]any{}
			}
			for k, v := range req.Params {
				n.Params[k] = v
			}
			if n.Prompt() != oldPrompt {
				n.Params["human_edited"] = true
			}
			contentChanged = true
		}
		if contentChanged {
			g.MarkStale(n.ID)
		}

		if err := repo.Save(ctx, g); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	}
}

// DeleteNode handles DELETE /graphs/:graph_id/nodes/:node_id. Incident
// edges go with the node and its former downstream is marked stale; the
// node's stored media is removed best-effort.
func DeleteNode(repo GraphRepository, store MediaStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		g, err := repo.Load(ctx, c.Param("graph_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		nodeID := c.Param("node_id")
		if g.Node(nodeID) == nil {
			respondError(c, &graph.NodeNotFoundError{GraphID: g.ID, NodeID: nodeID})
			return
		}

		g.RemoveNode(nodeID)
		if err := store.DeleteNodeMedia(ctx, nodeID); err != nil {
			slog.Warn("failed to delete node media",
				"graph_id", g.ID, "node_id", nodeID, "error", err)
		}
		if err := repo.Save(ctx, g); err != nil {
			respondError(c, err)
			return
		}
		slog.Info("node deleted", "graph_id", g.ID, "node_id", nodeID)
		c.JSON(http.StatusOK, datatypes.MessageResponse{Message: "node deleted"})
	}
}
