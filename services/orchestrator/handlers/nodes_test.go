// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

func TestCreateNode(t *testing.T) {
	g := graph.New("g1", "empty")
	repo := newFakeGraphRepo(g)
	r := graphRouter(repo, newFakeMedia())

	w := serve(t, r, http.MethodPost, "/graphs/g1/nodes", map[string]any{
		"type":   "generate_image",
		"label":  "hero shot",
		"params": map[string]any{"prompt": "a red sneaker on concrete"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var n graph.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))
	assert.Equal(t, graph.NodeTypeGenerateImage, n.Type)
	assert.Equal(t, graph.NodeStatusIdle, n.Status)
	require.Len(t, n.InputPorts, 1)
	require.Len(t, n.OutputPorts, 1)
	assert.Equal(t, graph.InputPortID(n.ID, "in"), n.InputPorts[0].ID)
	assert.Equal(t, graph.PortTypeImage, n.OutputPorts[0].PortType)

	assert.NotNil(t, g.Node(n.ID))
}

func TestCreateNode_UnknownType(t *testing.T) {
	repo := newFakeGraphRepo(graph.New("g1", "empty"))
	r := graphRouter(repo, newFakeMedia())

	w := serve(t, r, http.MethodPost, "/graphs/g1/nodes", map[string]any{"type": "teleport"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateNode_GraphNotFound(t *testing.T) {
	r := graphRouter(newFakeGraphRepo(), newFakeMedia())

	w := serve(t, r, http.MethodPost, "/graphs/missing/nodes", map[string]any{"type": "generate_text"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateNode_PositionChangeKeepsCache(t *testing.T) {
	g := chainGraph()
	r := graphRouter(newFakeGraphRepo(g), newFakeMedia())

	w := serve(t, r, http.MethodPatch, "/graphs/g1/nodes/a", map[string]any{
		"position": map[string]any{"x": 40.0, "y": 80.0},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	n := g.Node("a")
	assert.Equal(t, 40.0, n.Position.X)
	assert.False(t, n.Stale)
	assert.False(t, g.Node("b").Stale)
}

func TestUpdateNode_LabelChangeMarksStale(t *testing.T) {
	g := chainGraph()
	r := graphRouter(newFakeGraphRepo(g), newFakeMedia())

	w := serve(t, r, http.MethodPatch, "/graphs/g1/nodes/a", map[string]any{
		"label": "relabelled",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The label feeds prompt assembly, so the cached results downstream
	// are no longer valid.
	assert.Equal(t, "relabelled", g.Node("a").Label)
	assert.True(t, g.Node("a").Stale)
	assert.True(t, g.Node("b").Stale)
}

func TestUpdateNode_SameLabelKeepsCache(t *testing.T) {
	g := chainGraph()
	r := graphRouter(newFakeGraphRepo(g), newFakeMedia())

	w := serve(t, r, http.MethodPatch, "/graphs/g1/nodes/a", map[string]any{
		"label": "a",
	})
	require.Equal(t, http.StatusOK, w.Code)

	assert.False(t, g.Node("a").Stale)
	assert.False(t, g.Node("b").Stale)
}

func TestUpdateNode_ParamsPatchMergesIntoExisting(t *testing.T) {
	g := chainGraph()
	g.Node("a").Params["enrich"] = false
	r := graphRouter(newFakeGraphRepo(g), newFakeMedia())

	w := serve(t, r, http.MethodPatch, "/graphs/g1/nodes/a", map[string]any{
		"params": map[string]any{"prompt": "a fresh angle"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// A partial patch must not drop keys it did not mention.
	n := g.Node("a")
	assert.Equal(t, "a fresh angle", n.Params["prompt"])
	assert.Equal(t, false, n.Params["enrich"])
}

func TestUpdateNode_ParamsMarkDownstreamStale(t *testing.T) {
	g := chainGraph()
	r := graphRouter(newFakeGraphRepo(g), newFakeMedia())

	w := serve(t, r, http.MethodPatch, "/graphs/g1/nodes/a", map[string]any{
		"params": map[string]any{"prompt": "a completely different scene"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.True(t, g.Node("a").Stale)
	assert.True(t, g.Node("b").Stale)
	// The author rewrote the prompt by hand; enrichment must not override it.
	assert.Equal(t, true, g.Node("a").Params["human_edited"])
}

func TestUpdateNode_SameParamsNotHumanEdited(t *testing.T) {
	g := chainGraph()
	r := graphRouter(newFakeGraphRepo(g), newFakeMedia())

	// Same prompt text, different auxiliary param.
	w := serve(t, r, http.MethodPatch, "/graphs/g1/nodes/a", map[string]any{
		"params": map[string]any{"prompt": "p-a", "aspect_ratio": "16:9"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	assert.True(t, g.Node("a").Stale)
	_, flagged := g.Node("a").Params["human_edited"]
	assert.False(t, flagged)
}

func TestUpdateNode_NotFound(t *testing.T) {
	r := graphRouter(newFakeGraphRepo(chainGraph()), newFakeMedia())

	w := serve(t, r, http.MethodPatch, "/graphs/g1/nodes/zz", map[string]any{"label": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteNode_CascadesEdgesAndMarksDownstream(t *testing.T) {
	g := chainGraph()
	store := newFakeMedia()
	r := graphRouter(newFakeGraphRepo(g), store)

	w := serve(t, r, http.MethodDelete, "/graphs/g1/nodes/a", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Nil(t, g.Node("a"))
	assert.Empty(t, g.Edges)
	assert.True(t, g.Node("b").Stale)
	assert.Equal(t, []string{"a"}, store.deleted)
}

func TestDeleteNode_NotFound(t *testing.T) {
	r := graphRouter(newFakeGraphRepo(chainGraph()), newFakeMedia())

	w := serve(t, r, http.MethodDelete, "/graphs/g1/nodes/zz", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
