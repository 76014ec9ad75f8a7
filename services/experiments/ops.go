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
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// ErrNoGenome is returned when hooks are requested before a genome exists.
var ErrNoGenome = errors.New("experiment must have a genome before building hooks")

// Repository persists experiments.
type Repository interface {
	Save(ctx context.Context, e *Experiment) error
	Load(ctx context.Context, id string) (*Experiment, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Experiment, error)
}

// GraphRepository is the slice of graph persistence experiments need.
type GraphRepository interface {
	Save(ctx context.Context, g *graph.Graph) error
	Load(ctx context.Context, id string) (*graph.Graph, error)
	Delete(ctx context.Context, id string) error
}

// MediaStore is the slice of media storage experiments need.
type MediaStore interface {
	UploadImage(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error)
	ReadMediaBytes(ctx context.Context, url string) ([]byte, error)
	DeleteNodeMedia(ctx context.Context, nodeID string) error
}

// ConfigUpdate carries the optional fields of a config patch. Nil means
// leave unchanged; an ImagesPerHook of zero or less clears the pin.
type ConfigUpdate struct {
	ArtifactType  *string
	ImageModel    *string
	VideoModel    *string
	ImagesPerHook *int
}

// Operations drives the experiment lifecycle against storage.
type Operations struct {
	repo    Repository
	graphs  GraphRepository
	store   MediaStore
	service *Service
	logger  *slog.Logger

	mu     sync.Mutex
	builds map[string]context.CancelFunc
}

// NewOperations wires the experiment lifecycle together.
func NewOperations(repo Repository, graphs GraphRepository, store MediaStore, service *Service, logger *slog.Logger) *Operations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Operations{
		repo:    repo,
		graphs:  graphs,
		store:   store,
		service: service,
		logger:  logger,
		builds:  make(map[string]context.CancelFunc),
	}
}

// Create starts a new experiment in the brief state.
func (o *Operations) Create(ctx context.Context, name, brief string) (*Experiment, error) {
	e := New(uuid.New().String(), name, brief)
	if err := o.repo.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Get loads one experiment.
func (o *Operations) Get(ctx context.Context, experimentID string) (*Experiment, error) {
	return o.repo.Load(ctx, experimentID)
}

// List returns all experiments.
func (o *Operations) List(ctx context.Context) ([]*Experiment, error) {
	return o.repo.List(ctx)
}

// GenerateGenome runs genome extraction over the experiment's brief. A
// non-empty brief replaces the stored one first.
func (o *Operations) GenerateGenome(ctx context.Context, experimentID, brief string) (*Experiment, error) {
	e, err := o.repo.Load(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if brief != "" {
		e.Brief = brief
	}
	genome, err := o.service.GenerateGenome(ctx, e.Brief, e.ArtifactType)
	if err != nil {
		return nil, err
	}
	e.Genome = genome
	e.Status = StatusGenome
	if err := o.repo.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateGenome replaces the genome with a hand-edited one.
func (o *Operations) UpdateGenome(ctx context.Context, experimentID string, genome *ContentGenome) (*Experiment, error) {
	e, err := o.repo.Load(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if genome.Brief == "" {
		genome.Brief = e.Brief
	}
	e.Genome = genome
	e.Status = StatusGenome
	if err := o.repo.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateConfig patches artifact and model settings.
func (o *Operations) UpdateConfig(ctx context.Context, experimentID string, update ConfigUpdate) (*Experiment, error) {
	e, err := o.repo.Load(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if update.ArtifactType != nil {
		e.ArtifactType = *update.ArtifactType
	}
	if update.ImageModel != nil {
		e.ImageModel = *update.ImageModel
	}
	if update.VideoModel != nil {
		e.VideoModel = *update.VideoModel
	}
	if update.ImagesPerHook != nil {
		if *update.ImagesPerHook > 0 {
			e.ImagesPerHook = update.ImagesPerHook
		} else {
			e.ImagesPerHook = nil
		}
	}
	if err := o.repo.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// BuildHooks designs hook graphs for the experiment, persists them, and
// records one draft hook per graph. The build is cancellable through
// CancelBuild; a cancelled build surfaces ctx.Err.
func (o *Operations) BuildHooks(ctx context.Context, experimentID string, count int) (*Experiment, error) {
	buildCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.builds[experimentID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.builds, experimentID)
		o.mu.Unlock()
	}()

	e, err := o.repo.Load(buildCtx, experimentID)
	if err != nil {
		return nil, err
	}
	if e.Genome == nil {
		return nil, ErrNoGenome
	}

	var referenceImage []byte
	if e.Genome.ReferenceImageURL != "" {
		referenceImage, err = o.store.ReadMediaBytes(buildCtx, e.Genome.ReferenceImageURL)
		if err != nil {
			o.logger.Warn("reference image unavailable, building without it",
				"experiment_id", experimentID, "error", err)
			referenceImage = nil
		}
	}

	o.logger.Info("designing hook graphs",
		"experiment_id", experimentID, "count", count, "artifact_type", e.ArtifactType)
	results, err := o.service.GenerateHookGraphs(buildCtx, HookGraphParams{
		Genome:         e.Genome,
		ExperimentName: e.Name,
		Count:          count,
		ArtifactType:   e.ArtifactType,
		ImageModel:     e.ImageModel,
		VideoModel:     e.VideoModel,
		ReferenceImage: referenceImage,
		ImagesPerHook:  e.ImagesPerHook,
	})
	if err != nil {
		if ctxErr := buildCtx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	o.logger.Info("hook graphs designed", "experiment_id", experimentID, "hooks", len(results))

	hooks := make([]*Hook, 0, len(results))
	for _, hg := range results {
		hg.Graph.ExperimentID = e.ID
		if err := o.graphs.Save(ctx, hg.Graph); err != nil {
			return nil, fmt.Errorf("failed to save hook graph: %w", err)
		}
		hooks = append(hooks, &Hook{
			ID:          uuid.New().String(),
			GraphID:     hg.Graph.ID,
			GenomeLabel: hg.GenomeLabel,
			Status:      HookDraft,
			Label:       hg.Graph.Name,
		})
	}

	e.Hooks = hooks
	e.Status = StatusBuilt
	if err := o.repo.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CancelBuild aborts an in-flight BuildHooks for the experiment, if any.
func (o *Operations) CancelBuild(experimentID string) {
	o.mu.Lock()
	cancel := o.builds[experimentID]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// UpdateHookStatus moves one hook to the given review state.
func (o *Operations) UpdateHookStatus(ctx context.Context, experimentID, hookID string, status HookStatus) (*Experiment, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid hook status %q", status)
	}
	e, err := o.repo.Load(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	hook := e.Hook(hookID)
	if hook == nil {
		return nil, &HookNotFoundError{ExperimentID: experimentID, HookID: hookID}
	}
	hook.Status = status
	if err := o.repo.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// SelectAllHooks marks every draft or executed hook selected.
func (o *Operations) SelectAllHooks(ctx context.Context, experimentID string) (*Experiment, error) {
	e, err := o.repo.Load(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	for _, hook := range e.Hooks {
		if hook.Status == HookDraft || hook.Status == HookExecuted {
			hook.Status = HookSelected
		}
	}
	if err := o.repo.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// DeselectAllHooks returns every selected or executed hook to draft.
func (o *Operations) DeselectAllHooks(ctx context.Context, experimentID string) (*Experiment, error) {
	e, err := o.repo.Load(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	for _, hook := range e.Hooks {
		if hook.Status == HookSelected || hook.Status == HookExecuted {
			hook.Status = HookDraft
		}
	}
	if err := o.repo.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// MarkHooksExecuted flips every hook whose graph completed in a batch to
// executed and advances the experiment to the executed state. Graph IDs
// that match no hook are ignored, so a batch narrowed by the caller only
// touches the hooks it actually ran.
func (o *Operations) MarkHooksExecuted(ctx context.Context, experimentID string, completedGraphIDs []string) error {
	if experimentID == "" || len(completedGraphIDs) == 0 {
		return nil
	}
	e, err := o.repo.Load(ctx, experimentID)
	if err != nil {
		return err
	}
	completed := make(map[string]bool, len(completedGraphIDs))
	for _, gid := range completedGraphIDs {
		completed[gid] = true
	}
	changed := false
	for _, hook := range e.Hooks {
		if completed[hook.GraphID] && hook.Status != HookExecuted {
			hook.Status = HookExecuted
			changed = true
		}
	}
	if !changed {
		return nil
	}
	e.Status = StatusExecuted
	return o.repo.Save(ctx, e)
}

// Delete removes the experiment, its hook graphs, and their media.
func (o *Operations) Delete(ctx context.Context, experimentID string) error {
	e, err := o.repo.Load(ctx, experimentID)
	if err != nil {
		return err
	}

	for _, hook := range e.Hooks {
		g, err := o.graphs.Load(ctx, hook.GraphID)
		if err != nil {
			continue
		}
		for _, nodeID := range g.NodeIDs() {
			if err := o.store.DeleteNodeMedia(ctx, nodeID); err != nil {
				o.logger.Warn("failed to delete node media", "node_id", nodeID, "error", err)
			}
		}
		if err := o.graphs.Delete(ctx, hook.GraphID); err != nil {
			o.logger.Warn("failed to delete hook graph", "graph_id", hook.GraphID, "error", err)
		}
	}

	return o.repo.Delete(ctx, experimentID)
}

// UploadReferenceImage stores a reference image for the experiment and
// returns its URL.
func (o *Operations) UploadReferenceImage(ctx context.Context, experimentID string, data []byte) (string, error) {
	if _, err := o.repo.Load(ctx, experimentID); err != nil {
		return "", err
	}
	urls, err := o.store.UploadImage(ctx, "experiment-"+experimentID, data, "")
	if err != nil {
		return "", err
	}
	return urls.Original, nil
}
