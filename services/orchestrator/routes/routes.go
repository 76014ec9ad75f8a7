// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/themariolinml/Pixel-Groove/services/engine/runs"
	"github.com/themariolinml/Pixel-Groove/services/experiments"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/handlers"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/observability"
)

// Deps carries everything the route table needs. Middleware is the
// caller's business; SetupRoutes only wires paths to handlers.
type Deps struct {
	Graphs      handlers.GraphRepository
	Media       handlers.MediaStore
	Executions  *runs.Executions
	Batches     *runs.Batches
	Experiments *experiments.Operations

	// Metrics may be nil when Prometheus registration is disabled.
	Metrics *observability.ExecutionMetrics

	// MediaDir is served at /media for locally stored blobs.
	MediaDir string
}

func SetupRoutes(router *gin.Engine, d Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static("/media", d.MediaDir)

	v1 := router.Group("/api/v1")
	{
		graphs := v1.Group("/graphs")
		{
			graphs.POST("", handlers.CreateGraph(d.Graphs))
			graphs.GET("", handlers.ListGraphs(d.Graphs))
			graphs.GET("/:graph_id", handlers.GetGraph(d.Graphs))
			graphs.PATCH("/:graph_id", handlers.UpdateGraph(d.Graphs))
			graphs.DELETE("/:graph_id", handlers.DeleteGraph(d.Graphs, d.Media))
			graphs.POST("/:graph_id/duplicate", handlers.DuplicateGraph(d.Graphs, d.Media))
			graphs.POST("/:graph_id/execute", handlers.ExecuteGraph(d.Executions, d.Metrics))

			graphs.POST("/:graph_id/nodes", handlers.CreateNode(d.Graphs))
			graphs.PATCH("/:graph_id/nodes/:node_id", handlers.UpdateNode(d.Graphs))
			graphs.DELETE("/:graph_id/nodes/:node_id", handlers.DeleteNode(d.Graphs, d.Media))
			graphs.POST("/:graph_id/nodes/:node_id/regenerate", handlers.RegenerateNode(d.Executions, d.Graphs, d.Metrics))

			graphs.POST("/:graph_id/edges", handlers.CreateEdge(d.Graphs))
			graphs.DELETE("/:graph_id/edges/:edge_id", handlers.DeleteEdge(d.Graphs))
		}

		executions := v1.Group("/executions")
		{
			executions.GET("/:execution_id/events", handlers.StreamExecutionEvents(d.Executions, d.Metrics))
			executions.GET("/:execution_id/events/ws", handlers.StreamExecutionEventsWS(d.Executions, d.Metrics))
			executions.POST("/:execution_id/cancel", handlers.CancelExecution(d.Executions))
		}

		batches := v1.Group("/batches")
		{
			batches.GET("/:batch_id/events", handlers.StreamBatchEvents(d.Batches, d.Metrics))
			batches.POST("/:batch_id/cancel", handlers.CancelBatch(d.Batches))
		}

		exps := v1.Group("/experiments")
		{
			exps.POST("", handlers.CreateExperiment(d.Experiments))
			exps.GET("", handlers.ListExperiments(d.Experiments))
			exps.GET("/:experiment_id", handlers.GetExperiment(d.Experiments))
			exps.DELETE("/:experiment_id", handlers.DeleteExperiment(d.Experiments))
			exps.POST("/:experiment_id/execute", handlers.ExecuteBatch(d.Batches, d.Experiments, d.Metrics))

			exps.POST("/:experiment_id/genome", handlers.GenerateGenome(d.Experiments))
			exps.PUT("/:experiment_id/genome", handlers.UpdateGenome(d.Experiments))
			exps.PATCH("/:experiment_id/config", handlers.UpdateExperimentConfig(d.Experiments))
			exps.POST("/:experiment_id/reference-image", handlers.UploadReferenceImage(d.Experiments))

			exps.POST("/:experiment_id/build", handlers.BuildHooks(d.Experiments))
			exps.DELETE("/:experiment_id/build", handlers.CancelBuild(d.Experiments))
			exps.PATCH("/:experiment_id/hooks/:hook_id", handlers.UpdateHookStatus(d.Experiments))
			exps.POST("/:experiment_id/select-all", handlers.SelectAllHooks(d.Experiments))
			exps.POST("/:experiment_id/deselect-all", handlers.DeselectAllHooks(d.Experiments))
		}
	}
}
