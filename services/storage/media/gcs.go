// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// Mirror wraps a Store and copies every addressable artifact into a GCS
// bucket. Bucket writes are best-effort: a failure is logged and the local
// result still wins. The mirror is append-only, so deletions and
// duplications apply to local storage only.
type Mirror struct {
	Store
	client *storage.Client
	bucket string
	logger *slog.Logger
}

var _ Store = (*Mirror)(nil)

// NewMirror builds a GCS mirror around inner using a service account key.
func NewMirror(ctx context.Context, inner Store, bucket, saKeyPath string, logger *slog.Logger) (*Mirror, error) {
	if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", saKeyPath)
	}

	client, err := storage.NewClient(ctx, option.WithCredentialsFile(saKeyPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Mirror{Store: inner, client: client, bucket: bucket, logger: logger}, nil
}

func (m *Mirror) UploadImage(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error) {
	urls, err := m.Store.UploadImage(ctx, nodeID, data, format)
	if err != nil {
		return urls, err
	}
	if format == "" {
		format = "png"
	}
	m.mirror(ctx, urls.Original, data, "image/"+format)
	return urls, nil
}

func (m *Mirror) UploadVideo(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error) {
	urls, err := m.Store.UploadVideo(ctx, nodeID, data, format)
	if err != nil {
		return urls, err
	}
	if format == "" {
		format = "mp4"
	}
	m.mirror(ctx, urls.Original, data, "video/"+format)
	return urls, nil
}

func (m *Mirror) UploadAudio(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error) {
	urls, err := m.Store.UploadAudio(ctx, nodeID, data, format)
	if err != nil {
		return urls, err
	}
	if format == "" {
		format = "wav"
	}
	m.mirror(ctx, urls.Original, data, "audio/"+format)
	return urls, nil
}

// mirror uploads bytes to the bucket under the same media/... key the URL
// addresses. Text is never mirrored since it rides inline.
func (m *Mirror) mirror(ctx context.Context, url string, data []byte, contentType string) {
	_, key, ok := strings.Cut(url, urlPrefix+"/")
	if !ok {
		return
	}
	key = "media/" + key

	obj := m.client.Bucket(m.bucket).Object(key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := writer.Write(data); err != nil {
		m.logger.Warn("GCS mirror write failed", "object", key, "error", err)
		writer.Close()
		return
	}
	if err := writer.Close(); err != nil {
		m.logger.Warn("GCS mirror close failed", "object", key, "error", err)
	}
}
