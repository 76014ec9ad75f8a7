// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"log/slog"

	"github.com/themariolinml/Pixel-Groove/services/engine/backend"
	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// Service wraps the LLM-facing half of experiments: genome extraction and
// hook graph design. Persistence and lifecycle live in Operations.
type Service struct {
	ai     backend.Backend
	logger *slog.Logger
}

// NewService builds a Service on top of a generation backend.
func NewService(ai backend.Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ai: ai, logger: logger}
}

// HookGraphParams configures one architect run.
type HookGraphParams struct {
	Genome         *ContentGenome
	ExperimentName string
	// Count is how many distinct hooks to design. Defaults to 4.
	Count        int
	ArtifactType string
	ImageModel   string
	VideoModel   string
	// ReferenceImage, when present, is analyzed and woven into every
	// prompt the architect writes.
	ReferenceImage []byte
	// ImagesPerHook pins the number of terminal image nodes. Nil lets
	// the architect decide.
	ImagesPerHook *int
}

// HookGraph pairs a designed pipeline with the genome values it explores.
type HookGraph struct {
	Graph       *graph.Graph
	GenomeLabel map[string]string
}
