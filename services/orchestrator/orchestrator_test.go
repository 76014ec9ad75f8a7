// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themariolinml/Pixel-Groove/services/engine/executor"
	"github.com/themariolinml/Pixel-Groove/services/engine/nodeexec"
	"github.com/themariolinml/Pixel-Groove/services/engine/runs"
	"github.com/themariolinml/Pixel-Groove/services/engine/schedule"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// The engine seams New wires together: the per-node executor feeds both the
// level runner and the batch scheduler; the runner and scheduler drive the
// run registries.
var (
	_ executor.NodeExecutor = (*nodeexec.Executor)(nil)
	_ schedule.NodeRunner   = (*nodeexec.Executor)(nil)
	_ runs.GraphRunner      = (*executor.Runner)(nil)
	_ runs.BatchRunner      = (*schedule.Scheduler)(nil)
)

// newTestService wires a full service against temp storage. Metrics stay
// disabled: promauto registration is process-global and several tests
// build their own service.
func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := New(config.Config{
		DataDir:        t.TempDir(),
		MediaDir:       t.TempDir(),
		BackendType:    "openai",
		OpenAIAPIKey:   "test-key",
		DisableMetrics: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.(*service).cleanup() })
	return svc
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNew_UnknownBackendFails(t *testing.T) {
	_, err := New(config.Config{
		DataDir:        t.TempDir(),
		BackendType:    "carrier-pigeon",
		DisableMetrics: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestService_Health(t *testing.T) {
	svc := newTestService(t)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pixelgroove")
}

// TestService_GraphLifecycle drives the storage-backed part of the API end
// to end through the real router: create, mutate, duplicate, delete.
func TestService_GraphLifecycle(t *testing.T) {
	router := newTestService(t).Router()

	// Create a graph.
	w := doJSON(t, router, http.MethodPost, "/api/v1/graphs",
		map[string]any{"name": "spring launch"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	// Two nodes and an edge between them.
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/graphs/%s/nodes", created.ID),
		map[string]any{"type": "generate_text", "label": "concept", "params": map[string]any{"prompt": "a spring scene"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var textNode struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &textNode))

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/graphs/%s/nodes", created.ID),
		map[string]any{"type": "generate_image", "label": "hero image"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var imageNode struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &imageNode))

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/graphs/%s/edges", created.ID),
		map[string]any{
			"from_node_id": textNode.ID,
			"from_port_id": textNode.ID + "_output_text",
			"to_node_id":   imageNode.ID,
			"to_port_id":   imageNode.ID + "_input_in",
		})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// The reverse edge would close a cycle.
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/graphs/%s/edges", created.ID),
		map[string]any{
			"from_node_id": imageNode.ID,
			"from_port_id": imageNode.ID + "_output_image",
			"to_node_id":   textNode.ID,
			"to_port_id":   textNode.ID + "_input_in",
		})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	// Read it back with both nodes present.
	w = doJSON(t, router, http.MethodGet, "/api/v1/graphs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Nodes map[string]json.RawMessage `json:"nodes"`
		Edges []json.RawMessage          `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got.Nodes, 2)
	assert.Len(t, got.Edges, 1)

	// Duplicate, then delete the original; the copy must survive.
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/graphs/%s/duplicate", created.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var dup struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dup))
	require.NotEqual(t, created.ID, dup.ID)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/graphs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/graphs/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, router, http.MethodGet, "/api/v1/graphs/"+dup.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestService_ExperimentConfig exercises the experiment endpoints that stay
// on storage (no generation calls).
func TestService_ExperimentConfig(t *testing.T) {
	router := newTestService(t).Router()

	w := doJSON(t, router, http.MethodPost, "/api/v1/experiments",
		map[string]any{"name": "sneaker drop", "brief": "launch a retro sneaker line"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var exp struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		ArtifactType string `json:"artifact_type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exp))
	assert.Equal(t, "brief", exp.Status)
	assert.Equal(t, "video", exp.ArtifactType)

	w = doJSON(t, router, http.MethodPatch, "/api/v1/experiments/"+exp.ID+"/config",
		map[string]any{"artifact_type": "image", "images_per_hook": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var patched struct {
		ArtifactType  string `json:"artifact_type"`
		ImagesPerHook *int   `json:"images_per_hook"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &patched))
	assert.Equal(t, "image", patched.ArtifactType)
	require.NotNil(t, patched.ImagesPerHook)
	assert.Equal(t, 3, *patched.ImagesPerHook)

	// Batch execution with no selected hooks is a client error.
	w = doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/execute", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodDelete, "/api/v1/experiments/"+exp.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodGet, "/api/v1/experiments/"+exp.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestService_StreamUnknownExecution verifies the event stream 404s before
// committing to SSE.
func TestService_StreamUnknownExecution(t *testing.T) {
	router := newTestService(t).Router()

	w := doJSON(t, router, http.MethodGet, "/api/v1/executions/nope/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not found")
}
