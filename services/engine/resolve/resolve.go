// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resolve gathers a node's input data from the results of its
// upstream nodes.
//
// Multiple edges can target the same input port; same-modality inputs are
// collected as ordered lists so handlers can use all of them (several
// images feeding one text node, for example). Binary media is fetched from
// the blob store; text results carry their content inline in the URL field
// and are never fetched.
package resolve

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// fetchLimit caps concurrent blob reads per resolve call.
const fetchLimit = 4

// Store is the slice of the blob store the resolver needs.
type Store interface {
	ReadMediaBytes(ctx context.Context, url string) ([]byte, error)
}

// Inputs is the resolved upstream data for one node, bucketed by modality.
type Inputs struct {
	Images [][]byte
	Videos [][]byte
	Audios [][]byte
	Texts  []string
}

// Resolver materializes upstream results into handler inputs.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// New creates a resolver reading blobs from store.
func New(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// blobRef is one pending media fetch, remembering where its bytes belong.
type blobRef struct {
	mediaType graph.MediaType
	url       string
	data      []byte
}

// Resolve collects data from every upstream node connected to nodeID's
// input ports. Sources missing from results are skipped: the scheduler
// guarantees dependencies are terminal before dispatch, so an absent
// entry means nothing was produced. Unreadable blobs are logged and
// skipped rather than failing the node.
//
// The only error returned is context cancellation.
func (r *Resolver) Resolve(ctx context.Context, g *graph.Graph, nodeID string, results map[string]*graph.MediaResult) (Inputs, error) {
	inputs := Inputs{}
	node := g.Node(nodeID)
	if node == nil {
		return inputs, nil
	}

	// First pass: walk ports in declaration order and edges in insertion
	// order, inlining texts and queueing blob fetches.
	var refs []*blobRef
	for _, port := range node.InputPorts {
		for _, e := range g.Edges {
			if e.ToNodeID != nodeID || e.ToPortID != port.ID {
				continue
			}
			src := results[e.FromNodeID]
			if src == nil {
				continue
			}
			switch src.MediaType {
			case graph.MediaTypeImage, graph.MediaTypeVideo, graph.MediaTypeAudio:
				refs = append(refs, &blobRef{mediaType: src.MediaType, url: src.URLs.Original})
			default:
				inputs.Texts = append(inputs.Texts, src.URLs.Original)
			}
		}
	}

	if len(refs) > 0 {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(fetchLimit)
		var mu sync.Mutex
		for _, ref := range refs {
			ref := ref
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				data, err := r.store.ReadMediaBytes(egCtx, ref.url)
				if err != nil {
					r.logger.Warn("skipping unreadable input blob",
						slog.String("node_id", nodeID),
						slog.String("url", ref.url),
						slog.String("error", err.Error()))
					return nil
				}
				mu.Lock()
				ref.data = data
				mu.Unlock()
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return Inputs{}, err
		}
	}

	// Second pass: bucket fetched bytes, preserving edge order and
	// dropping fetches that came back empty.
	for _, ref := range refs {
		if len(ref.data) == 0 {
			continue
		}
		switch ref.mediaType {
		case graph.MediaTypeImage:
			inputs.Images = append(inputs.Images, ref.data)
		case graph.MediaTypeVideo:
			inputs.Videos = append(inputs.Videos, ref.data)
		case graph.MediaTypeAudio:
			inputs.Audios = append(inputs.Audios, ref.data)
		}
	}
	return inputs, nil
}
