// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/datatypes"
	"github.com/themariolinml/Pixel-Groove/services/storage/media"
)

// GraphRepository is the graph persistence surface the handlers mutate
// through. Reads are expected to come through the caching layer.
type GraphRepository interface {
	Save(ctx context.Context, g *graph.Graph) error
	Load(ctx context.Context, id string) (*graph.Graph, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*graph.Graph, error)
}

// MediaStore is the slice of blob storage the graph handlers need: node
// cleanup on delete and blob copying on duplicate.
type MediaStore interface {
	DeleteNodeMedia(ctx context.Context, nodeID string) error
	DuplicateNodeMedia(ctx context.Context, sourceNodeID, targetNodeID string) error
}

// CreateGraph handles POST /graphs.
func CreateGraph(repo GraphRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateGraphRequest
		if !bindAndValidate(c, &req) {
			return
		}

		g := graph.New(uuid.New().String(), req.Name)
		g.CanvasMemory = req.CanvasMemory
		if err := repo.Save(c.Request.Context(), g); err != nil {
			respondError(c, err)
			return
		}
		slog.Info("graph created", "graph_id", g.ID, "name", g.Name)
		c.JSON(http.StatusCreated, g)
	}
}

// ListGraphs handles GET /graphs. Returns summaries, newest first.
func ListGraphs(repo GraphRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		graphs, err := repo.List(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		summaries := make([]datatypes.GraphSummary, 0, len(graphs))
		for _, g := range graphs {
			summaries = append(summaries, datatypes.NewGraphSummary(g))
		}
		sort.Slice(summaries, func(i, j int) bool {
			return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
		})
		c.JSON(http.StatusOK, gin.H{"graphs": summaries})
	}
}

// GetGraph handles GET /graphs/:graph_id.
func GetGraph(repo GraphRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, err := repo.Load(c.Request.Context(), c.Param("graph_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, g)
	}
}

// UpdateGraph handles PATCH /graphs/:graph_id. Renames the graph or
// replaces its canvas memory; replacing canvas memory marks every node
// holding a cached result stale.
func UpdateGraph(repo GraphRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.UpdateGraphRequest
		if !bindAndValidate(c, &req) {
			return
		}

		ctx := c.Request.Context()
		g, err := repo.Load(ctx, c.Param("graph_id"))
		if err != nil {
			respondError(c, err)
			return
		}

		if req.Name != nil {
			g.Name = *req.Name
		}
		if req.CanvasMemory != nil {
			g.SetCanvasMemory(*req.CanvasMemory)
		}
		if err := repo.Save(ctx, g); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, g)
	}
}

// DeleteGraph handles DELETE /graphs/:graph_id. Node media goes with the
// graph; a blob-store failure is logged but does not block the delete.
func DeleteGraph(repo GraphRepository, store MediaStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		g, err := repo.Load(ctx, c.Param("graph_id"))
		if err != nil {
			respondError(c, err)
			return
		}

		for _, nodeID := range g.NodeIDs() {
			if err := store.DeleteNodeMedia(ctx, nodeID); err != nil {
				slog.Warn("failed to delete node media",
					"graph_id", g.ID, "node_id", nodeID, "error", err)
			}
		}
		if err := repo.Delete(ctx, g.ID); err != nil {
			respondError(c, err)
			return
		}
		slog.Info("graph deleted", "graph_id", g.ID)
		c.JSON(http.StatusOK, datatypes.MessageResponse{Message: "graph deleted"})
	}
}

// DuplicateGraph handles POST /graphs/:graph_id/duplicate. The copy gets
// fresh graph/node/port/edge IDs, its own copy of each node's stored
// media, and result URLs rewritten to the new node directories.
func DuplicateGraph(repo GraphRepository, store MediaStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		g, err := repo.Load(ctx, c.Param("graph_id"))
		if err != nil {
			respondError(c, err)
			return
		}

		dup, mapping, err := g.Duplicate(g.Name + " (copy)")
		if err != nil {
			respondError(c, err)
			return
		}

		for oldID, newID := range mapping {
			if err := store.DuplicateNodeMedia(ctx, oldID, newID); err != nil {
				slog.Warn("failed to duplicate node media",
					"graph_id", g.ID, "node_id", oldID, "error", err)
				continue
			}
			rewriteNodeURLs(dup.Node(newID), oldID, newID)
		}

		if err := repo.Save(ctx, dup); err != nil {
			respondError(c, err)
			return
		}
		slog.Info("graph duplicated", "graph_id", g.ID, "copy_id", dup.ID)
		c.JSON(http.StatusCreated, dup)
	}
}

// rewriteNodeURLs points the node's result and history URLs at its new
// media directory.
func rewriteNodeURLs(n *graph.Node, oldID, newID string) {
	if n == nil {
		return
	}
	rewrite := func(r *graph.MediaResult) {
		if r == nil {
			return
		}
		r.URLs.Original = media.RewriteNodeURL(r.URLs.Original, oldID, newID)
		r.URLs.Thumbnail = media.RewriteNodeURL(r.URLs.Thumbnail, oldID, newID)
	}
	rewrite(n.Result)
	for _, r := range n.GenerationHistory {
		rewrite(r)
	}
}
