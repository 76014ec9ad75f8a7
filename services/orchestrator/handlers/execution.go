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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/themariolinml/Pixel-Groove/services/engine/events"
	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
	"github.com/themariolinml/Pixel-Groove/services/engine/runs"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/datatypes"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/observability"
)

// keepAliveInterval paces SSE comment pings so idle streams survive
// proxy timeouts (nginx defaults to 60s).
const keepAliveInterval = 15 * time.Second

func executionStreamURL(id string) string {
	return "/api/v1/executions/" + id + "/events"
}

// ExecuteGraph handles POST /graphs/:graph_id/execute. The run is
// registered and driven in the background; the response carries the
// execution ID and the SSE stream URL. An empty body runs the whole
// graph without forcing.
func ExecuteGraph(registry *runs.Executions, metrics *observability.ExecutionMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ExecuteGraphRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
				return
			}
		}

		executionID, err := registry.Start(c.Request.Context(), c.Param("graph_id"), req.OutputNodeIDs, req.Force)
		if err != nil {
			respondError(c, err)
			return
		}
		if metrics != nil {
			metrics.RecordRun(observability.RunKindExecution)
		}
		c.JSON(http.StatusAccepted, datatypes.ExecuteGraphResponse{
			ExecutionID: executionID,
			StreamURL:   executionStreamURL(executionID),
		})
	}
}

// StreamExecutionEvents handles GET /executions/:execution_id/events.
// Events flow as SSE data frames until the run's terminal event closes
// the stream. A client disconnect leaves the run registered, so a
// reconnect resumes from the undrained queue.
func StreamExecutionEvents(registry *runs.Executions, metrics *observability.ExecutionMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		stream, err := registry.Stream(c.Request.Context(), c.Param("execution_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		serveEventStream(c, stream, metrics)
	}
}

// serveEventStream pumps an event channel to the client as SSE frames
// until the channel closes. Shared by the execution and batch streams.
func serveEventStream(c *gin.Context, stream <-chan events.Event, metrics *observability.ExecutionMetrics) {
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	if metrics != nil {
		metrics.StreamOpened(observability.TransportSSE)
		defer metrics.StreamClosed(observability.TransportSSE)
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				return
			}
			if err := writer.WriteEvent(ev); err != nil {
				slog.Debug("sse write failed, dropping client", "error", err)
				return
			}
			if metrics != nil {
				metrics.RecordEvent(string(ev.Type))
			}
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// CancelExecution handles POST /executions/:execution_id/cancel.
// Cancellation is cooperative: in-flight node calls run to completion
// and are recorded, no further level dispatches, and the run winds down
// with a cancelled event.
func CancelExecution(registry *runs.Executions) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("execution_id")
		if !registry.Cancel(id) {
			respondError(c, &runs.ExecutionNotFoundError{ExecutionID: id})
			return
		}
		c.JSON(http.StatusOK, datatypes.MessageResponse{Message: "cancellation requested"})
	}
}

// RegenerateNode handles POST /graphs/:graph_id/nodes/:node_id/regenerate.
// The node is marked stale and a single-output run targets it, so fresh
// upstream results are reused and only the node itself re-generates.
func RegenerateNode(registry *runs.Executions, store GraphRepository, metrics *observability.ExecutionMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		graphID := c.Param("graph_id")
		nodeID := c.Param("node_id")

		g, err := store.Load(c.Request.Context(), graphID)
		if err != nil {
			respondError(c, err)
			return
		}
		if g.Node(nodeID) == nil {
			respondError(c, &graph.NodeNotFoundError{GraphID: graphID, NodeID: nodeID})
			return
		}
		g.MarkStale(nodeID)
		if err := store.Save(c.Request.Context(), g); err != nil {
			respondError(c, err)
			return
		}

		executionID, err := registry.Start(c.Request.Context(), graphID, []string{nodeID}, false)
		if err != nil {
			respondError(c, err)
			return
		}
		if metrics != nil {
			metrics.RecordRun(observability.RunKindExecution)
		}
		c.JSON(http.StatusAccepted, datatypes.ExecuteGraphResponse{
			ExecutionID: executionID,
			StreamURL:   executionStreamURL(executionID),
		})
	}
}
