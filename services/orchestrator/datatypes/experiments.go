// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains request types for the experiment lifecycle. Responses
// are the experiments.Experiment domain type; its JSON tags are the wire
// format.
package datatypes

import (
	"github.com/themariolinml/Pixel-Groove/services/experiments"
)

// CreateExperimentRequest starts a new experiment from a creative brief.
type CreateExperimentRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Brief string `json:"brief" validate:"maxbytes"`
}

// Validate checks the request against its validation tags.
func (r *CreateExperimentRequest) Validate() error {
	return validate.Struct(r)
}

// GenerateGenomeRequest triggers genome extraction. A non-empty Brief
// replaces the stored one first.
type GenerateGenomeRequest struct {
	Brief string `json:"brief" validate:"maxbytes"`
}

// Validate checks the request against its validation tags.
func (r *GenerateGenomeRequest) Validate() error {
	return validate.Struct(r)
}

// UpdateGenomeRequest replaces the genome with a hand-edited one.
type UpdateGenomeRequest struct {
	Genome *experiments.ContentGenome `json:"genome" validate:"required"`
}

// Validate checks the request against its validation tags.
func (r *UpdateGenomeRequest) Validate() error {
	return validate.Struct(r)
}

// UpdateExperimentConfigRequest patches generation settings. Nil fields
// are left unchanged; an ImagesPerHook of zero clears the pin.
type UpdateExperimentConfigRequest struct {
	ArtifactType  *string `json:"artifact_type" validate:"omitempty,oneof=image video"`
	ImageModel    *string `json:"image_model" validate:"omitempty,max=100"`
	VideoModel    *string `json:"video_model" validate:"omitempty,max=100"`
	ImagesPerHook *int    `json:"images_per_hook" validate:"omitempty,gte=0,lte=12"`
}

// Validate checks the request against its validation tags.
func (r *UpdateExperimentConfigRequest) Validate() error {
	return validate.Struct(r)
}

// BuildHooksRequest asks the architect for hook graphs. Zero Count lets
// the service pick its default.
type BuildHooksRequest struct {
	Count int `json:"count" validate:"gte=0,lte=20"`
}

// Validate checks the request against its validation tags.
func (r *BuildHooksRequest) Validate() error {
	return validate.Struct(r)
}

// UpdateHookStatusRequest moves one hook through review.
type UpdateHookStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft selected executed rejected"`
}

// Validate checks the request against its validation tags.
func (r *UpdateHookStatusRequest) Validate() error {
	return validate.Struct(r)
}

// ReferenceImageResponse returns where an uploaded reference image landed.
type ReferenceImageResponse struct {
	URL string `json:"url"`
}
