// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// twoNodes builds a graph with unconnected text and image nodes.
func twoNodes() *graph.Graph {
	g := graph.New("g1", "pair")
	g.AddNode(graph.NewNode("a", graph.NodeTypeGenerateText, "a", nil, graph.Position{}))
	g.AddNode(graph.NewNode("b", graph.NodeTypeGenerateImage, "b", nil, graph.Position{}))
	return g
}

func edgeBody(fromNode, fromPort, toNode, toPort string) map[string]any {
	return map[string]any{
		"from_node_id": fromNode,
		"from_port_id": fromPort,
		"to_node_id":   toNode,
		"to_port_id":   toPort,
	}
}

func TestCreateEdge(t *testing.T) {
	g := twoNodes()
	r := graphRouter(newFakeGraphRepo(g), newFakeMedia())

	w := serve(t, r, http.MethodPost, "/graphs/g1/edges",
		edgeBody("a", graph.OutputPortID("a", "text"), "b", graph.InputPortID("b", "in")))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, g.Edges, 1)
	assert.True(t, g.Node("b").Stale, "gaining an input is a content change")
}

func TestCreateEdge_DuplicateAnswers200WithoutSave(t *testing.T) {
	g := twoNodes()
	repo := newFakeGraphRepo(g)
	r := graphRouter(repo, newFakeMedia())

	body := edgeBody("a", graph.OutputPortID("a", "text"), "b", graph.InputPortID("b", "in"))
	w := serve(t, r, http.MethodPost, "/graphs/g1/edges", body)
	require.Equal(t, http.StatusCreated, w.Code)
	saved := repo.saveCount()

	w = serve(t, r, http.MethodPost, "/graphs/g1/edges", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, g.Edges, 1)
	assert.Equal(t, saved, repo.saveCount())
}

func TestCreateEdge_UnknownNode(t *testing.T) {
	r := graphRouter(newFakeGraphRepo(twoNodes()), newFakeMedia())

	w := serve(t, r, http.MethodPost, "/graphs/g1/edges",
		edgeBody("zz", graph.OutputPortID("zz", "text"), "b", graph.InputPortID("b", "in")))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateEdge_UnknownPort(t *testing.T) {
	r := graphRouter(newFakeGraphRepo(twoNodes()), newFakeMedia())

	w := serve(t, r, http.MethodPost, "/graphs/g1/edges",
		edgeBody("a", graph.OutputPortID("a", "frames"), "b", graph.InputPortID("b", "in")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "port")
}

func TestCreateEdge_CycleRejected(t *testing.T) {
	g := twoNodes()
	r := graphRouter(newFakeGraphRepo(g), newFakeMedia())

	w := serve(t, r, http.MethodPost, "/graphs/g1/edges",
		edgeBody("a", graph.OutputPortID("a", "text"), "b", graph.InputPortID("b", "in")))
	require.Equal(t, http.StatusCreated, w.Code)

	w = serve(t, r, http.MethodPost, "/graphs/g1/edges",
		edgeBody("b", graph.OutputPortID("b", "image"), "a", graph.InputPortID("a", "in")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "cycle")
	assert.Len(t, g.Edges, 1)
}

func TestDeleteEdge_MarksTargetStale(t *testing.T) {
	g := chainGraph()
	r := graphRouter(newFakeGraphRepo(g), newFakeMedia())
	edgeID := g.Edges[0].ID

	w := serve(t, r, http.MethodDelete, "/graphs/g1/edges/"+edgeID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Empty(t, g.Edges)
	assert.True(t, g.Node("b").Stale)
}

func TestDeleteEdge_NotFound(t *testing.T) {
	r := graphRouter(newFakeGraphRepo(chainGraph()), newFakeMedia())

	w := serve(t, r, http.MethodDelete, "/graphs/g1/edges/zz", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
