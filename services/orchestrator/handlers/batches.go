// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/themariolinml/Pixel-Groove/services/engine/runs"
	"github.com/themariolinml/Pixel-Groove/services/experiments"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/datatypes"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/observability"
)

// ExperimentSource provides read access to experiments for batch admission.
// Implemented by experiments.Operations.
type ExperimentSource interface {
	Get(ctx context.Context, experimentID string) (*experiments.Experiment, error)
}

func batchStreamURL(id string) string {
	return "/api/v1/batches/" + id + "/events"
}

// ExecuteBatch handles POST /experiments/:experiment_id/execute. Empty
// graph_ids runs the graphs of every selected hook; explicit graph_ids
// narrow the batch and must all belong to the experiment's hooks.
func ExecuteBatch(registry *runs.Batches, source ExperimentSource, metrics *observability.ExecutionMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.BatchExecuteRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
				return
			}
		}

		e, err := source.Get(c.Request.Context(), c.Param("experiment_id"))
		if err != nil {
			respondError(c, err)
			return
		}

		graphIDs := req.GraphIDs
		if len(graphIDs) == 0 {
			graphIDs = e.SelectedGraphIDs()
			if len(graphIDs) == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "no selected hooks to execute"})
				return
			}
		} else {
			known := make(map[string]bool, len(e.Hooks))
			for _, h := range e.Hooks {
				known[h.GraphID] = true
			}
			for _, gid := range graphIDs {
				if !known[gid] {
					c.JSON(http.StatusBadRequest, gin.H{"error": "graph " + gid + " is not part of experiment " + e.ID})
					return
				}
			}
		}

		batchID, err := registry.Start(c.Request.Context(), e.ID, graphIDs, req.Force)
		if err != nil {
			respondError(c, err)
			return
		}
		if metrics != nil {
			metrics.RecordRun(observability.RunKindBatch)
		}
		c.JSON(http.StatusAccepted, datatypes.BatchExecuteResponse{
			BatchID:   batchID,
			StreamURL: batchStreamURL(batchID),
		})
	}
}

// StreamBatchEvents handles GET /batches/:batch_id/events, the batch
// counterpart of the execution SSE stream.
func StreamBatchEvents(registry *runs.Batches, metrics *observability.ExecutionMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		stream, err := registry.Stream(c.Request.Context(), c.Param("batch_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		serveEventStream(c, stream, metrics)
	}
}

// CancelBatch handles POST /batches/:batch_id/cancel. In-flight nodes
// finish and are recorded; queued work is abandoned.
func CancelBatch(registry *runs.Batches) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("batch_id")
		if !registry.Cancel(id) {
			respondError(c, &runs.BatchNotFoundError{BatchID: id})
			return
		}
		c.JSON(http.StatusOK, datatypes.MessageResponse{Message: "cancellation requested"})
	}
}
