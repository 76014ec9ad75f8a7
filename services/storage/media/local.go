// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package media

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

const urlPrefix = "/media"

// Local stores artifacts on the filesystem under
// {root}/{node_id}/{generation_id}/. URLs are server-relative unless a
// public base URL is configured.
type Local struct {
	root    string
	baseURL string
}

var _ Store = (*Local)(nil)

// NewLocal creates the media root if needed. baseURL may be empty for
// relative URLs.
func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media root %s: %w", root, err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// generationID returns a short hex ID, unique enough to never collide
// within a single node's directory.
func generationID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:12]
}

// validateID rejects IDs that could escape the media root when used as a
// path segment.
func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid media path segment %q", id)
	}
	return nil
}

func (s *Local) generationDir(nodeID string) (dir, genID string, err error) {
	if err := validateID(nodeID); err != nil {
		return "", "", err
	}
	genID = generationID()
	dir = filepath.Join(s.root, nodeID, genID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create generation dir: %w", err)
	}
	return dir, genID, nil
}

func (s *Local) url(nodeID, genID, filename string) string {
	return fmt.Sprintf("%s%s/%s/%s/%s", s.baseURL, urlPrefix, nodeID, genID, filename)
}

func (s *Local) UploadImage(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error) {
	if format == "" {
		format = "png"
	}
	dir, genID, err := s.generationDir(nodeID)
	if err != nil {
		return graph.MediaURLs{}, err
	}

	original := "original." + format
	if err := os.WriteFile(filepath.Join(dir, original), data, 0o644); err != nil {
		return graph.MediaURLs{}, fmt.Errorf("failed to write image: %w", err)
	}

	thumb, err := renderThumbnail(data)
	if err != nil {
		return graph.MediaURLs{}, fmt.Errorf("failed to build thumbnail: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "thumbnail.jpg"), thumb, 0o644); err != nil {
		return graph.MediaURLs{}, fmt.Errorf("failed to write thumbnail: %w", err)
	}

	return graph.MediaURLs{
		Original:  s.url(nodeID, genID, original),
		Thumbnail: s.url(nodeID, genID, "thumbnail.jpg"),
	}, nil
}

func (s *Local) UploadVideo(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error) {
	if format == "" {
		format = "mp4"
	}
	return s.uploadRaw(nodeID, data, format, "video")
}

func (s *Local) UploadAudio(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error) {
	if format == "" {
		format = "wav"
	}
	return s.uploadRaw(nodeID, data, format, "audio")
}

// uploadRaw writes bytes without a rendered thumbnail; the thumbnail URL
// points at the original so players can still address it.
func (s *Local) uploadRaw(nodeID string, data []byte, format, kind string) (graph.MediaURLs, error) {
	dir, genID, err := s.generationDir(nodeID)
	if err != nil {
		return graph.MediaURLs{}, err
	}
	original := "original." + format
	if err := os.WriteFile(filepath.Join(dir, original), data, 0o644); err != nil {
		return graph.MediaURLs{}, fmt.Errorf("failed to write %s: %w", kind, err)
	}
	u := s.url(nodeID, genID, original)
	return graph.MediaURLs{Original: u, Thumbnail: u}, nil
}

func (s *Local) UploadText(ctx context.Context, nodeID string, text string) (graph.MediaURLs, error) {
	dir, _, err := s.generationDir(nodeID)
	if err != nil {
		return graph.MediaURLs{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "output.txt"), []byte(text), 0o644); err != nil {
		return graph.MediaURLs{}, fmt.Errorf("failed to write text: %w", err)
	}
	// The text itself is the URL payload, sparing readers a round trip.
	return graph.MediaURLs{Original: text, Thumbnail: text}, nil
}

func (s *Local) ReadMediaBytes(ctx context.Context, url string) ([]byte, error) {
	_, rel, ok := strings.Cut(url, urlPrefix+"/")
	if !ok {
		return nil, fmt.Errorf("%q is not a media URL", url)
	}
	rel = filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("media URL %q escapes the media root", url)
	}
	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if err != nil {
		return nil, fmt.Errorf("failed to read media %s: %w", url, err)
	}
	return data, nil
}

func (s *Local) DeleteNodeMedia(ctx context.Context, nodeID string) error {
	if err := validateID(nodeID); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, nodeID)); err != nil {
		return fmt.Errorf("failed to delete media for node %s: %w", nodeID, err)
	}
	return nil
}

// RewriteNodeURL points a media URL at a different node's directory.
// Inlined text results and foreign URLs pass through unchanged.
func RewriteNodeURL(url, oldNodeID, newNodeID string) string {
	return strings.Replace(url, urlPrefix+"/"+oldNodeID+"/", urlPrefix+"/"+newNodeID+"/", 1)
}

func (s *Local) DuplicateNodeMedia(ctx context.Context, sourceNodeID, targetNodeID string) error {
	if err := validateID(sourceNodeID); err != nil {
		return err
	}
	if err := validateID(targetNodeID); err != nil {
		return err
	}
	src := filepath.Join(s.root, sourceNodeID)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat media for node %s: %w", sourceNodeID, err)
	}
	if err := os.CopyFS(filepath.Join(s.root, targetNodeID), os.DirFS(src)); err != nil {
		return fmt.Errorf("failed to duplicate media from %s to %s: %w", sourceNodeID, targetNodeID, err)
	}
	return nil
}
