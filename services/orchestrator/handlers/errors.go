// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers provides the gin handler factories for the Pixel-Groove
// HTTP surface: graphs, nodes, edges, runs, batches, experiments, and the
// event streams. Handlers are closures over their dependencies; they bind
// and validate the request, call into the engine or storage layer, and map
// domain errors to HTTP statuses through respondError.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
	"github.com/themariolinml/Pixel-Groove/services/engine/runs"
	"github.com/themariolinml/Pixel-Groove/services/experiments"
)

// respondError maps a domain error onto an HTTP status and writes the
// generic error body.
//
// Not-found lookups are 404, structural mutations the client got wrong
// (bad ports, cycles) are 400, a semantically valid request the domain
// rejects (building hooks with no genome) is 422, a cancelled
// build is 499 (nginx's client-closed-request, the closest standard-ish
// code), and everything else is a 500 with the detail kept out of the
// response body.
func respondError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err)
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg})
}

// StatusClientClosedRequest reports a server-side operation aborted because
// the client asked for it to stop (cancelled hook build).
const StatusClientClosedRequest = 499

func errorStatus(err error) (int, string) {
	var (
		graphNotFound *graph.GraphNotFoundError
		nodeNotFound  *graph.NodeNotFoundError
		edgeNotFound  *graph.EdgeNotFoundError
		portNotFound  *graph.PortNotFoundError
		incompatible  *graph.PortIncompatibleError
		cycle         *graph.CycleDetectedError
		runNotFound   *runs.ExecutionNotFoundError
		batchNotFound *runs.BatchNotFoundError
		expNotFound   *experiments.NotFoundError
		hookNotFound  *experiments.HookNotFoundError
	)
	switch {
	case errors.As(err, &graphNotFound),
		errors.As(err, &nodeNotFound),
		errors.As(err, &edgeNotFound),
		errors.As(err, &runNotFound),
		errors.As(err, &batchNotFound),
		errors.As(err, &expNotFound),
		errors.As(err, &hookNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &portNotFound),
		errors.As(err, &incompatible),
		errors.As(err, &cycle):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, experiments.ErrNoGenome):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "build cancelled"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// bindAndValidate decodes the JSON body into req and runs its validator.
// On failure it writes the 400 response and reports false.
func bindAndValidate(c *gin.Context, req interface{ Validate() error }) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
