// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package experiments turns a creative brief into batches of executable
// pipelines. A brief is distilled into a content genome, the genome is
// expanded into hook graphs by an LLM acting as a pipeline architect, and
// the resulting graphs are executed as one batch per experiment.
package experiments

import (
	"fmt"
	"time"
)

// Status tracks how far an experiment has progressed.
type Status string

const (
	StatusBrief    Status = "brief"
	StatusGenome   Status = "genome"
	StatusBuilt    Status = "built"
	StatusReviewed Status = "reviewed"
	StatusExecuted Status = "executed"
)

// HookStatus is the review state of a single hook.
type HookStatus string

const (
	HookDraft    HookStatus = "draft"
	HookSelected HookStatus = "selected"
	HookExecuted HookStatus = "executed"
	HookRejected HookStatus = "rejected"
)

// IsValid reports whether s is a known hook status.
func (s HookStatus) IsValid() bool {
	switch s {
	case HookDraft, HookSelected, HookExecuted, HookRejected:
		return true
	}
	return false
}

// Artifact types an experiment can target.
const (
	ArtifactImage = "image"
	ArtifactVideo = "video"
)

// Image model tiers routed through the media gateway.
const (
	ImageModelFast  = "imagen-4-fast"
	ImageModelStd   = "imagen-4"
	ImageModelUltra = "imagen-4-ultra"
	ImageModelFlash = "flash-image"
	ImageModelPro   = "pro-image"
)

// VideoModelVeo is the default video model. Veo clips carry native audio,
// so video pipelines never need speech or music nodes.
const VideoModelVeo = "veo-3.1"

// GenomeDimension is one orthogonal creative axis, such as color palette
// or narrative arc.
type GenomeDimension struct {
	Name        string   `json:"name"`
	Values      []string `json:"values"`
	Description string   `json:"description"`
}

// RequiredAsset names a subject that must appear in the final output.
type RequiredAsset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ContentGenome is the structured distillation of a creative brief.
type ContentGenome struct {
	Dimensions          []GenomeDimension `json:"dimensions"`
	Brief               string            `json:"brief"`
	Goal                string            `json:"goal"`
	TargetAudience      string            `json:"target_audience"`
	Platform            string            `json:"platform"`
	DesiredOutcome      string            `json:"desired_outcome"`
	ReferenceImageURL   string            `json:"reference_image_url"`
	ReferenceImageUsage string            `json:"reference_image_usage"`
	RequiredAssets      []RequiredAsset   `json:"required_assets"`
}

// Hook binds one generated pipeline graph to the genome values it explores.
type Hook struct {
	ID          string            `json:"id"`
	GraphID     string            `json:"graph_id"`
	GenomeLabel map[string]string `json:"genome_label"`
	Status      HookStatus        `json:"status"`
	Label       string            `json:"label"`
}

// Experiment is the root aggregate: a brief, its genome, and the hooks
// built from it.
type Experiment struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Brief         string         `json:"brief"`
	Status        Status         `json:"status"`
	Genome        *ContentGenome `json:"genome"`
	Hooks         []*Hook        `json:"hooks"`
	ArtifactType  string         `json:"artifact_type"`
	ImageModel    string         `json:"image_model"`
	VideoModel    string         `json:"video_model"`
	ImagesPerHook *int           `json:"images_per_hook"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// New creates a fresh experiment in the brief state with default models.
func New(id, name, brief string) *Experiment {
	now := time.Now().UTC()
	return &Experiment{
		ID:           id,
		Name:         name,
		Brief:        brief,
		Status:       StatusBrief,
		Hooks:        []*Hook{},
		ArtifactType: ArtifactVideo,
		ImageModel:   ImageModelUltra,
		VideoModel:   VideoModelVeo,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Hook returns the hook with the given ID, or nil.
func (e *Experiment) Hook(hookID string) *Hook {
	for _, h := range e.Hooks {
		if h.ID == hookID {
			return h
		}
	}
	return nil
}

// SelectedGraphIDs returns the graph IDs of all hooks marked selected, in
// hook order.
func (e *Experiment) SelectedGraphIDs() []string {
	var ids []string
	for _, h := range e.Hooks {
		if h.Status == HookSelected {
			ids = append(ids, h.GraphID)
		}
	}
	return ids
}

// NotFoundError reports a missing experiment.
type NotFoundError struct {
	ExperimentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("experiment %s not found", e.ExperimentID)
}

// HookNotFoundError reports a missing hook within an experiment.
type HookNotFoundError struct {
	ExperimentID string
	HookID       string
}

func (e *HookNotFoundError) Error() string {
	return fmt.Sprintf("hook %s not found in experiment %s", e.HookID, e.ExperimentID)
}
