// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package media persists generated artifacts and hands back addressable
// URLs. Every upload gets its own generation directory so a node's history
// survives regeneration, and text rides inline in the returned URLs so
// readers skip a fetch.
package media

import (
	"context"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// Store is the persistence boundary for generated media.
type Store interface {
	// UploadImage stores image bytes plus a JPEG thumbnail. Format
	// defaults to png.
	UploadImage(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error)

	// UploadVideo stores video bytes. The thumbnail URL points at the
	// original. Format defaults to mp4.
	UploadVideo(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error)

	// UploadAudio stores audio bytes. The thumbnail URL points at the
	// original. Format defaults to wav.
	UploadAudio(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error)

	// UploadText stores the text and returns it inline in both URL
	// fields rather than as a path.
	UploadText(ctx context.Context, nodeID string, text string) (graph.MediaURLs, error)

	// ReadMediaBytes resolves a /media/... URL back to the stored bytes.
	ReadMediaBytes(ctx context.Context, url string) ([]byte, error)

	// DeleteNodeMedia removes every generation a node has produced.
	DeleteNodeMedia(ctx context.Context, nodeID string) error

	// DuplicateNodeMedia copies one node's generations to another node,
	// a no-op when the source has none.
	DuplicateNodeMedia(ctx context.Context, sourceNodeID, targetNodeID string) error
}
