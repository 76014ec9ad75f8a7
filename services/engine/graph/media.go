// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"time"

	"github.com/google/uuid"
)

// MediaType classifies the artifact a node produces.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
	MediaTypeText  MediaType = "text"
)

// MediaURLs holds the served locations of one generated artifact.
//
// For text results the content itself is inlined into both fields so
// consumers never need a second fetch.
type MediaURLs struct {
	Original  string `json:"original"`
	Thumbnail string `json:"thumbnail"`
}

// MediaMetadata describes the stored artifact. Zero values mean unknown.
type MediaMetadata struct {
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Format    string  `json:"format,omitempty"`
	SizeBytes int     `json:"size_bytes,omitempty"`
}

// MediaResult is the output of one node execution.
//
// The producing node owns its result; the blob store owns the underlying
// bytes. Prompt is the exact text sent to the backend after context assembly
// and enrichment; OriginalPrompt preserves the pre-enrichment text when the
// enrichment pass rewrote it.
type MediaResult struct {
	ID               string         `json:"id"`
	Timestamp        int64          `json:"timestamp"`
	MediaType        MediaType      `json:"media_type"`
	URLs             MediaURLs      `json:"urls"`
	Prompt           string         `json:"prompt"`
	Metadata         MediaMetadata  `json:"metadata"`
	GenerationParams map[string]any `json:"generation_params,omitempty"`
	OriginalPrompt   string         `json:"original_prompt,omitempty"`
}

// NewMediaResult allocates a result with a fresh ID and the current Unix
// timestamp.
func NewMediaResult(mediaType MediaType, urls MediaURLs, prompt string) *MediaResult {
	return &MediaResult{
		ID:        uuid.New().String(),
		Timestamp: time.Now().Unix(),
		MediaType: mediaType,
		URLs:      urls,
		Prompt:    prompt,
	}
}
