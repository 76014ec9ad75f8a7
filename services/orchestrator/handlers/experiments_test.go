// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themariolinml/Pixel-Groove/services/engine/backend"
	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
	"github.com/themariolinml/Pixel-Groove/services/experiments"
)

// fakeExpRepo is an in-memory experiments.Repository.
type fakeExpRepo struct {
	mu   sync.Mutex
	exps map[string]*experiments.Experiment
}

func newFakeExpRepo(exps ...*experiments.Experiment) *fakeExpRepo {
	r := &fakeExpRepo{exps: map[string]*experiments.Experiment{}}
	for _, e := range exps {
		r.exps[e.ID] = e
	}
	return r
}

func (r *fakeExpRepo) Save(ctx context.Context, e *experiments.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exps[e.ID] = e
	return nil
}

func (r *fakeExpRepo) Load(ctx context.Context, id string) (*experiments.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exps[id]
	if !ok {
		return nil, &experiments.NotFoundError{ExperimentID: id}
	}
	return e, nil
}

func (r *fakeExpRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.exps, id)
	return nil
}

func (r *fakeExpRepo) List(ctx context.Context) ([]*experiments.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*experiments.Experiment, 0, len(r.exps))
	for _, e := range r.exps {
		out = append(out, e)
	}
	return out, nil
}

// fakeExpMedia is an in-memory experiments.MediaStore.
type fakeExpMedia struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	deleted  []string
}

func newFakeExpMedia() *fakeExpMedia {
	return &fakeExpMedia{uploaded: map[string][]byte{}}
}

func (m *fakeExpMedia) UploadImage(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url := "/media/" + nodeID + "/ref.png"
	m.uploaded[url] = data
	return graph.MediaURLs{Original: url, Thumbnail: url}, nil
}

func (m *fakeExpMedia) ReadMediaBytes(ctx context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploaded[url], nil
}

func (m *fakeExpMedia) DeleteNodeMedia(ctx context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, nodeID)
	return nil
}

// genomeBackend answers every text call with a fixed genome JSON.
type genomeBackend struct {
	response string
}

func (b *genomeBackend) GenerateText(ctx context.Context, prompt string, params backend.Params, inputs backend.MultimodalInputs) (string, error) {
	return b.response, nil
}

func (b *genomeBackend) GenerateImage(ctx context.Context, prompt string, params backend.Params, images [][]byte) ([]byte, error) {
	return nil, backend.ErrUnsupported
}

func (b *genomeBackend) GenerateVideo(ctx context.Context, prompt string, params backend.Params, opts backend.VideoOptions) ([]byte, error) {
	return nil, backend.ErrUnsupported
}

func (b *genomeBackend) GenerateSpeech(ctx context.Context, text string, params backend.Params) ([]byte, error) {
	return nil, backend.ErrUnsupported
}

func (b *genomeBackend) GenerateMusic(ctx context.Context, prompt string, params backend.Params) ([]byte, error) {
	return nil, backend.ErrUnsupported
}

func (b *genomeBackend) AnalyzeImage(ctx context.Context, image []byte, prompt string, params backend.Params) (string, error) {
	return "", backend.ErrUnsupported
}

func (b *genomeBackend) Capabilities() backend.Capabilities { return backend.Capabilities{} }

type experimentFixture struct {
	repo   *fakeExpRepo
	graphs *fakeGraphRepo
	media  *fakeExpMedia
	router *gin.Engine
}

func newExperimentFixture(ai backend.Backend, exps ...*experiments.Experiment) *experimentFixture {
	f := &experimentFixture{
		repo:   newFakeExpRepo(exps...),
		graphs: newFakeGraphRepo(),
		media:  newFakeExpMedia(),
	}
	ops := experiments.NewOperations(f.repo, f.graphs, f.media, experiments.NewService(ai, nil), nil)

	r := gin.New()
	r.POST("/experiments", CreateExperiment(ops))
	r.GET("/experiments", ListExperiments(ops))
	r.GET("/experiments/:experiment_id", GetExperiment(ops))
	r.DELETE("/experiments/:experiment_id", DeleteExperiment(ops))
	r.POST("/experiments/:experiment_id/genome", GenerateGenome(ops))
	r.PUT("/experiments/:experiment_id/genome", UpdateGenome(ops))
	r.PATCH("/experiments/:experiment_id/config", UpdateExperimentConfig(ops))
	r.POST("/experiments/:experiment_id/reference-image", UploadReferenceImage(ops))
	r.POST("/experiments/:experiment_id/build", BuildHooks(ops))
	r.DELETE("/experiments/:experiment_id/build", CancelBuild(ops))
	r.PATCH("/experiments/:experiment_id/hooks/:hook_id", UpdateHookStatus(ops))
	r.POST("/experiments/:experiment_id/select-all", SelectAllHooks(ops))
	r.POST("/experiments/:experiment_id/deselect-all", DeselectAllHooks(ops))
	f.router = r
	return f
}

func TestCreateExperiment(t *testing.T) {
	f := newExperimentFixture(nil)

	w := serve(t, f.router, http.MethodPost, "/experiments",
		map[string]any{"name": "watch drop", "brief": "launch a mechanical watch"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var e experiments.Experiment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, experiments.StatusBrief, e.Status)
	assert.Equal(t, experiments.ArtifactVideo, e.ArtifactType)
	assert.NotEmpty(t, e.ID)
}

func TestCreateExperiment_MissingName(t *testing.T) {
	f := newExperimentFixture(nil)

	w := serve(t, f.router, http.MethodPost, "/experiments", map[string]any{"brief": "b"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListExperiments(t *testing.T) {
	f := newExperimentFixture(nil,
		experiments.New("e1", "one", ""),
		experiments.New("e2", "two", ""))

	w := serve(t, f.router, http.MethodGet, "/experiments", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Experiments []*experiments.Experiment `json:"experiments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Experiments, 2)
}

func TestGetExperiment_NotFound(t *testing.T) {
	f := newExperimentFixture(nil)

	w := serve(t, f.router, http.MethodGet, "/experiments/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateGenome(t *testing.T) {
	genomeJSON := `{"dimensions":[{"name":"palette","values":["noir","pastel"],"description":"color language"}],"goal":"sell the watch"}`
	f := newExperimentFixture(&genomeBackend{response: genomeJSON},
		experiments.New("e1", "watch drop", "launch a mechanical watch"))

	w := serve(t, f.router, http.MethodPost, "/experiments/e1/genome", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var e experiments.Experiment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, experiments.StatusGenome, e.Status)
	require.NotNil(t, e.Genome)
	require.Len(t, e.Genome.Dimensions, 1)
	assert.Equal(t, "palette", e.Genome.Dimensions[0].Name)
	// The stored brief fills the genome's empty brief field.
	assert.Equal(t, "launch a mechanical watch", e.Genome.Brief)
}

func TestGenerateGenome_InvalidModelOutput(t *testing.T) {
	f := newExperimentFixture(&genomeBackend{response: "not json at all"},
		experiments.New("e1", "watch drop", "brief"))

	w := serve(t, f.router, http.MethodPost, "/experiments/e1/genome", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestUpdateGenome(t *testing.T) {
	f := newExperimentFixture(nil, experiments.New("e1", "n", "stored brief"))

	w := serve(t, f.router, http.MethodPut, "/experiments/e1/genome", map[string]any{
		"genome": map[string]any{
			"dimensions": []map[string]any{{"name": "tone", "values": []string{"bold"}}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var e experiments.Experiment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, experiments.StatusGenome, e.Status)
	assert.Equal(t, "stored brief", e.Genome.Brief)
}

func TestUpdateExperimentConfig(t *testing.T) {
	f := newExperimentFixture(nil, experiments.New("e1", "n", ""))

	w := serve(t, f.router, http.MethodPatch, "/experiments/e1/config",
		map[string]any{"artifact_type": "image", "images_per_hook": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var e experiments.Experiment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, experiments.ArtifactImage, e.ArtifactType)
	require.NotNil(t, e.ImagesPerHook)
	assert.Equal(t, 2, *e.ImagesPerHook)
}

func TestUpdateExperimentConfig_UnknownArtifact(t *testing.T) {
	f := newExperimentFixture(nil, experiments.New("e1", "n", ""))

	w := serve(t, f.router, http.MethodPatch, "/experiments/e1/config",
		map[string]any{"artifact_type": "hologram"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBuildHooks_WithoutGenome(t *testing.T) {
	f := newExperimentFixture(nil, experiments.New("e1", "n", "brief"))

	w := serve(t, f.router, http.MethodPost, "/experiments/e1/build", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "genome")
}

func TestCancelBuild_NoActiveBuild(t *testing.T) {
	f := newExperimentFixture(nil, experiments.New("e1", "n", ""))

	w := serve(t, f.router, http.MethodDelete, "/experiments/e1/build", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "build cancelled")
}

func TestUpdateHookStatus(t *testing.T) {
	e := hookedExperiment()
	f := newExperimentFixture(nil, e)

	w := serve(t, f.router, http.MethodPatch, "/experiments/e1/hooks/h2",
		map[string]any{"status": "selected"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, experiments.HookSelected, e.Hook("h2").Status)
}

func TestUpdateHookStatus_UnknownHook(t *testing.T) {
	f := newExperimentFixture(nil, hookedExperiment())

	w := serve(t, f.router, http.MethodPatch, "/experiments/e1/hooks/zz",
		map[string]any{"status": "selected"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateHookStatus_InvalidStatus(t *testing.T) {
	f := newExperimentFixture(nil, hookedExperiment())

	w := serve(t, f.router, http.MethodPatch, "/experiments/e1/hooks/h1",
		map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSelectAndDeselectAllHooks(t *testing.T) {
	e := experiments.New("e1", "n", "")
	e.Hooks = []*experiments.Hook{
		{ID: "h1", GraphID: "g1", Status: experiments.HookDraft},
		{ID: "h2", GraphID: "g2", Status: experiments.HookRejected},
		{ID: "h3", GraphID: "g3", Status: experiments.HookExecuted},
	}
	f := newExperimentFixture(nil, e)

	w := serve(t, f.router, http.MethodPost, "/experiments/e1/select-all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, experiments.HookSelected, e.Hook("h1").Status)
	assert.Equal(t, experiments.HookRejected, e.Hook("h2").Status, "rejected hooks stay rejected")
	assert.Equal(t, experiments.HookSelected, e.Hook("h3").Status)

	w = serve(t, f.router, http.MethodPost, "/experiments/e1/deselect-all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, experiments.HookDraft, e.Hook("h1").Status)
	assert.Equal(t, experiments.HookRejected, e.Hook("h2").Status)
	assert.Equal(t, experiments.HookDraft, e.Hook("h3").Status)
}

func TestUploadReferenceImage(t *testing.T) {
	f := newExperimentFixture(nil, experiments.New("e1", "n", ""))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "ref.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/experiments/e1/reference-image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "/media/experiment-e1/ref.png", resp.URL)
	assert.Equal(t, []byte("png-bytes"), f.media.uploaded[resp.URL])
}

func TestUploadReferenceImage_MissingFile(t *testing.T) {
	f := newExperimentFixture(nil, experiments.New("e1", "n", ""))

	req := httptest.NewRequest(http.MethodPost, "/experiments/e1/reference-image", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteExperiment_CascadesHookGraphs(t *testing.T) {
	e := hookedExperiment()
	f := newExperimentFixture(nil, e)

	hg := graph.New("hg1", "hook graph")
	hg.AddNode(graph.NewNode("n1", graph.NodeTypeGenerateImage, "img", nil, graph.Position{}))
	require.NoError(t, f.graphs.Save(context.Background(), hg))

	w := serve(t, f.router, http.MethodDelete, "/experiments/e1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, err := f.repo.Load(context.Background(), "e1")
	assert.Error(t, err)
	_, err = f.graphs.Load(context.Background(), "hg1")
	assert.Error(t, err)
	assert.Contains(t, f.media.deleted, "n1")
}
