// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

type memExperimentRepo struct {
	mu    sync.Mutex
	items map[string]*Experiment
}

func newMemExperimentRepo() *memExperimentRepo {
	return &memExperimentRepo{items: make(map[string]*Experiment)}
}

func (r *memExperimentRepo) Save(ctx context.Context, e *Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[e.ID] = e
	return nil
}

func (r *memExperimentRepo) Load(ctx context.Context, id string) (*Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.items[id]
	if !ok {
		return nil, &NotFoundError{ExperimentID: id}
	}
	return e, nil
}

func (r *memExperimentRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *memExperimentRepo) List(ctx context.Context) ([]*Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Experiment, 0, len(r.items))
	for _, e := range r.items {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memGraphRepo struct {
	mu    sync.Mutex
	items map[string]*graph.Graph
}

func newMemGraphRepo() *memGraphRepo {
	return &memGraphRepo{items: make(map[string]*graph.Graph)}
}

func (r *memGraphRepo) Save(ctx context.Context, g *graph.Graph) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[g.ID] = g
	return nil
}

func (r *memGraphRepo) Load(ctx context.Context, id string) (*graph.Graph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.items[id]
	if !ok {
		return nil, &graph.GraphNotFoundError{GraphID: id}
	}
	return g, nil
}

func (r *memGraphRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

type fakeMediaStore struct {
	mu         sync.Mutex
	uploads    map[string][]byte
	deleted    []string
	mediaBytes map[string][]byte
}

func newFakeMediaStore() *fakeMediaStore {
	return &fakeMediaStore{
		uploads:    make(map[string][]byte),
		mediaBytes: make(map[string][]byte),
	}
}

func (s *fakeMediaStore) UploadImage(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[nodeID] = data
	u := fmt.Sprintf("/media/%s/gen1/original.png", nodeID)
	return graph.MediaURLs{Original: u, Thumbnail: u}, nil
}

func (s *fakeMediaStore) ReadMediaBytes(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.mediaBytes[url]
	if !ok {
		return nil, errors.New("no such media")
	}
	return data, nil
}

func (s *fakeMediaStore) DeleteNodeMedia(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, nodeID)
	return nil
}

func newTestOps(ai *fakeAI) (*Operations, *memExperimentRepo, *memGraphRepo, *fakeMediaStore) {
	repo := newMemExperimentRepo()
	graphs := newMemGraphRepo()
	store := newFakeMediaStore()
	ops := NewOperations(repo, graphs, store, NewService(ai, nil), nil)
	return ops, repo, graphs, store
}

func TestCreateAndGet(t *testing.T) {
	ops, _, _, _ := newTestOps(&fakeAI{})
	ctx := context.Background()

	e, err := ops.Create(ctx, "Watch launch", "Sell the watch")
	require.NoError(t, err)
	assert.Equal(t, StatusBrief, e.Status)
	assert.Equal(t, ArtifactVideo, e.ArtifactType)
	assert.Equal(t, ImageModelUltra, e.ImageModel)

	got, err := ops.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	_, err = ops.Get(ctx, "nope")
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestGenerateGenomeOp(t *testing.T) {
	ai := &fakeAI{textResponses: []string{`{"dimensions":[{"name":"d","values":["a","b"]}]}`}}
	ops, _, _, _ := newTestOps(ai)
	ctx := context.Background()

	e, err := ops.Create(ctx, "Exp", "old brief")
	require.NoError(t, err)

	updated, err := ops.GenerateGenome(ctx, e.ID, "new brief")
	require.NoError(t, err)
	assert.Equal(t, StatusGenome, updated.Status)
	assert.Equal(t, "new brief", updated.Brief)
	require.NotNil(t, updated.Genome)
	assert.Equal(t, "new brief", updated.Genome.Brief)
}

func TestUpdateGenome(t *testing.T) {
	ops, _, _, _ := newTestOps(&fakeAI{})
	ctx := context.Background()

	e, err := ops.Create(ctx, "Exp", "the brief")
	require.NoError(t, err)

	updated, err := ops.UpdateGenome(ctx, e.ID, &ContentGenome{
		Dimensions: []GenomeDimension{{Name: "tone", Values: []string{"warm"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusGenome, updated.Status)
	assert.Equal(t, "the brief", updated.Genome.Brief, "empty brief inherits the experiment's")
}

func TestUpdateConfig(t *testing.T) {
	ops, _, _, _ := newTestOps(&fakeAI{})
	ctx := context.Background()

	e, err := ops.Create(ctx, "Exp", "b")
	require.NoError(t, err)

	artifact := ArtifactImage
	per := 3
	updated, err := ops.UpdateConfig(ctx, e.ID, ConfigUpdate{ArtifactType: &artifact, ImagesPerHook: &per})
	require.NoError(t, err)
	assert.Equal(t, ArtifactImage, updated.ArtifactType)
	require.NotNil(t, updated.ImagesPerHook)
	assert.Equal(t, 3, *updated.ImagesPerHook)
	assert.Equal(t, VideoModelVeo, updated.VideoModel, "untouched fields keep their values")

	clear := 0
	updated, err = ops.UpdateConfig(ctx, e.ID, ConfigUpdate{ImagesPerHook: &clear})
	require.NoError(t, err)
	assert.Nil(t, updated.ImagesPerHook)
}

func TestBuildHooks(t *testing.T) {
	ai := &fakeAI{textResponses: []string{`{"hooks":[{"genome_label":{"tone":"warm"},"steps":[
		{"role":"w","type":"generate_text","label":"Writer","prompt":"p","params":{},"depends_on":[]}
	]}]}`}}
	ops, _, graphs, _ := newTestOps(ai)
	ctx := context.Background()

	e, err := ops.Create(ctx, "Exp", "brief")
	require.NoError(t, err)

	_, err = ops.BuildHooks(ctx, e.ID, 2)
	assert.ErrorIs(t, err, ErrNoGenome)

	_, err = ops.UpdateGenome(ctx, e.ID, &ContentGenome{Brief: "brief"})
	require.NoError(t, err)

	built, err := ops.BuildHooks(ctx, e.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusBuilt, built.Status)
	require.Len(t, built.Hooks, 1)

	hook := built.Hooks[0]
	assert.Equal(t, HookDraft, hook.Status)
	assert.Equal(t, map[string]string{"tone": "warm"}, hook.GenomeLabel)

	g, err := graphs.Load(ctx, hook.GraphID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, g.ExperimentID)
	assert.Len(t, g.Nodes, 1)
}

func TestBuildHooks_Cancel(t *testing.T) {
	ai := &fakeAI{blockText: true, started: make(chan struct{})}
	started := ai.started
	ops, _, _, _ := newTestOps(ai)
	ctx := context.Background()

	e, err := ops.Create(ctx, "Exp", "brief")
	require.NoError(t, err)
	_, err = ops.UpdateGenome(ctx, e.ID, &ContentGenome{Brief: "brief"})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := ops.BuildHooks(ctx, e.ID, 4)
		errCh <- err
	}()

	<-started
	ops.CancelBuild(e.ID)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("build did not observe cancellation")
	}
}

func TestHookStatusTransitions(t *testing.T) {
	ops, repo, _, _ := newTestOps(&fakeAI{})
	ctx := context.Background()

	e, err := ops.Create(ctx, "Exp", "b")
	require.NoError(t, err)
	e.Hooks = []*Hook{
		{ID: "h1", GraphID: "g1", Status: HookDraft},
		{ID: "h2", GraphID: "g2", Status: HookRejected},
		{ID: "h3", GraphID: "g3", Status: HookExecuted},
	}
	require.NoError(t, repo.Save(ctx, e))

	_, err = ops.UpdateHookStatus(ctx, e.ID, "h1", HookStatus("bogus"))
	assert.ErrorContains(t, err, "invalid hook status")

	_, err = ops.UpdateHookStatus(ctx, e.ID, "ghost", HookSelected)
	var hookErr *HookNotFoundError
	assert.ErrorAs(t, err, &hookErr)

	updated, err := ops.UpdateHookStatus(ctx, e.ID, "h1", HookSelected)
	require.NoError(t, err)
	assert.Equal(t, HookSelected, updated.Hook("h1").Status)

	// Select-all promotes drafts and executed hooks but leaves rejections.
	updated, err = ops.SelectAllHooks(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, HookSelected, updated.Hook("h1").Status)
	assert.Equal(t, HookRejected, updated.Hook("h2").Status)
	assert.Equal(t, HookSelected, updated.Hook("h3").Status)
	assert.Equal(t, []string{"g1", "g3"}, updated.SelectedGraphIDs())

	updated, err = ops.DeselectAllHooks(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, HookDraft, updated.Hook("h1").Status)
	assert.Equal(t, HookRejected, updated.Hook("h2").Status)
}

func TestDeleteCascades(t *testing.T) {
	ops, repo, graphs, store := newTestOps(&fakeAI{})
	ctx := context.Background()

	g := graph.New("g1", "hook graph")
	g.AddNode(graph.NewNode("n1", graph.NodeTypeGenerateText, "a", nil, graph.Position{}))
	g.AddNode(graph.NewNode("n2", graph.NodeTypeGenerateImage, "b", nil, graph.Position{}))
	require.NoError(t, graphs.Save(ctx, g))

	e, err := ops.Create(ctx, "Exp", "b")
	require.NoError(t, err)
	e.Hooks = []*Hook{{ID: "h1", GraphID: "g1", Status: HookDraft}}
	require.NoError(t, repo.Save(ctx, e))

	require.NoError(t, ops.Delete(ctx, e.ID))

	_, err = ops.Get(ctx, e.ID)
	assert.Error(t, err)
	_, err = graphs.Load(ctx, "g1")
	assert.Error(t, err)
	assert.ElementsMatch(t, []string{"n1", "n2"}, store.deleted)
}

func TestUploadReferenceImage(t *testing.T) {
	ops, _, _, store := newTestOps(&fakeAI{})
	ctx := context.Background()

	e, err := ops.Create(ctx, "Exp", "b")
	require.NoError(t, err)

	url, err := ops.UploadReferenceImage(ctx, e.ID, []byte{1, 2})
	require.NoError(t, err)
	assert.Contains(t, url, "experiment-"+e.ID)
	assert.Equal(t, []byte{1, 2}, store.uploads["experiment-"+e.ID])

	_, err = ops.UploadReferenceImage(ctx, "ghost", []byte{1})
	assert.Error(t, err)
}
