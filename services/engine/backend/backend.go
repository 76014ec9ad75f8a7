// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package backend defines the generation backend contract: one call is one
// generative model invocation returning text or bytes. Two implementations
// ship: an OpenAI-compatible client for text, vision, image and speech, and
// a media gateway client for the long-running modalities (video, music) plus
// multimodal image generation. A composite routes per modality so a
// deployment can mix both.
package backend

import (
	"context"
	"errors"
)

// ErrUnsupported is returned when a backend cannot serve a modality. The
// scheduler reports it as a regular node failure.
var ErrUnsupported = errors.New("modality not supported by this backend")

// Params is the typed view of a node's generation parameters. Zero values
// mean "backend default".
type Params struct {
	// Model overrides the configured model for this call.
	Model string

	Temperature float64
	TopP        float64
	MaxTokens   int

	// AspectRatio is "1:1", "16:9" or "9:16".
	AspectRatio string
	ImageSize   string

	// Voice selects the TTS voice.
	Voice string

	// Duration bounds generated music length in seconds.
	Duration float64

	// OutputMode is "", "json", or "structured". Structured mode requires
	// OutputFields and must yield JSON conforming to them.
	OutputMode   string
	OutputFields []map[string]any
}

// ParamsFromNode extracts the backend parameters from a node's raw params
// bag. Unknown keys are ignored; the full bag still travels on the
// MediaResult snapshot.
func ParamsFromNode(raw map[string]any) Params {
	p := Params{}
	if raw == nil {
		return p
	}
	if v, ok := raw["model"].(string); ok {
		p.Model = v
	}
	if v, ok := asFloat(raw["temperature"]); ok {
		p.Temperature = v
	}
	if v, ok := asFloat(raw["top_p"]); ok {
		p.TopP = v
	}
	if v, ok := asFloat(raw["max_output_tokens"]); ok {
		p.MaxTokens = int(v)
	}
	if v, ok := raw["aspect_ratio"].(string); ok {
		p.AspectRatio = v
	}
	if v, ok := raw["image_size"].(string); ok {
		p.ImageSize = v
	}
	if v, ok := raw["voice"].(string); ok {
		p.Voice = v
	}
	if v, ok := asFloat(raw["duration"]); ok {
		p.Duration = v
	}
	if v, ok := raw["output_mode"].(string); ok {
		p.OutputMode = v
	}
	if fields, ok := raw["output_fields"].([]any); ok {
		for _, f := range fields {
			if m, ok := f.(map[string]any); ok {
				p.OutputFields = append(p.OutputFields, m)
			}
		}
	}
	return p
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

// MultimodalInputs carries upstream artifacts attached to a text call.
type MultimodalInputs struct {
	Images [][]byte
	Audios [][]byte
	Videos [][]byte
}

// VideoOptions selects the video generation mode: reference assets win over
// a first-frame seed; with neither the call is pure text-to-video.
type VideoOptions struct {
	// FirstFrame seeds image-to-video generation.
	FirstFrame []byte

	// ReferenceImages preserve characters/style; at most three are used.
	ReferenceImages [][]byte
}

// Capabilities describes what a backend can do, so handlers can pick
// between a direct call and a composed fallback.
type Capabilities struct {
	// MultimodalImage means GenerateImage honors attached source images.
	MultimodalImage bool

	Video bool
	Music bool
}

// Backend is the generation contract. All calls block until the artifact is
// ready; long-running modalities poll internally and honor ctx cancellation
// between polls.
type Backend interface {
	// GenerateText produces text. Structured output modes are selected via
	// params and must return JSON matching the supplied field schema.
	GenerateText(ctx context.Context, prompt string, params Params, inputs MultimodalInputs) (string, error)

	// GenerateImage produces PNG bytes. Backends with MultimodalImage
	// consume the attached images as visual context; others ignore them.
	GenerateImage(ctx context.Context, prompt string, params Params, images [][]byte) ([]byte, error)

	// GenerateVideo produces MP4 bytes.
	GenerateVideo(ctx context.Context, prompt string, params Params, opts VideoOptions) ([]byte, error)

	// GenerateSpeech produces raw PCM: 16-bit little-endian, 24 kHz, mono.
	GenerateSpeech(ctx context.Context, text string, params Params) ([]byte, error)

	// GenerateMusic produces raw PCM: 16-bit little-endian, 48 kHz, stereo.
	GenerateMusic(ctx context.Context, prompt string, params Params) ([]byte, error)

	// AnalyzeImage runs vision over one image plus a prompt and returns
	// text.
	AnalyzeImage(ctx context.Context, image []byte, prompt string, params Params) (string, error)

	Capabilities() Capabilities
}
