// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/themariolinml/Pixel-Groove/services/orchestrator/datatypes"
)

// CreateEdge handles POST /graphs/:graph_id/edges. Validation order and
// error kinds follow the graph's AddEdge contract: unknown endpoints are
// 404, port mismatches and cycles are 400, and re-adding an identical
// edge answers 200 with the existing edge.
func CreateEdge(repo GraphRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateEdgeRequest
		if !bindAndValidate(c, &req) {
			return
		}

		ctx := c.Request.Context()
		g, err := repo.Load(ctx, c.Param("graph_id"))
		if err != nil {
			respondError(c, err)
			return
		}

		before := len(g.Edges)
		edge, err := g.AddEdge(req.FromNodeID, req.FromPortID, req.ToNodeID, req.ToPortID)
		if err != nil {
			respondError(c, err)
			return
		}
		if len(g.Edges) == before {
			// Duplicate insertion: nothing changed, nothing to save.
			c.JSON(http.StatusOK, edge)
			return
		}

		if err := repo.Save(ctx, g); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, edge)
	}
}

// DeleteEdge handles DELETE /graphs/:graph_id/edges/:edge_id. The former
// target node is marked stale: losing an input changes its content.
func DeleteEdge(repo GraphRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		g, err := repo.Load(ctx, c.Param("graph_id"))
		if err != nil {
			respondError(c, err)
			return
		}

		if err := g.RemoveEdge(c.Param("edge_id")); err != nil {
			respondError(c, err)
			return
		}
		if err := repo.Save(ctx, g); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, datatypes.MessageResponse{Message: "edge deleted"})
	}
}
