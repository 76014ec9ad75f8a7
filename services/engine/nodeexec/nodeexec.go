// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package nodeexec turns one node into one media result. Each node type has
// a handler that assembles the prompt from canvas memory, upstream text and
// the node's own prompt, optionally enriches it, invokes the backend and
// uploads the artifact. Adding a node type means adding one handler and one
// registry entry.
package nodeexec

import (
	"context"
	"fmt"
	"strings"

	"github.com/themariolinml/Pixel-Groove/services/engine/backend"
	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
	"github.com/themariolinml/Pixel-Groove/services/engine/resolve"
)

// Store persists generated artifacts and hands back addressable URLs.
type Store interface {
	UploadImage(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error)
	UploadVideo(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error)
	UploadAudio(ctx context.Context, nodeID string, data []byte, format string) (graph.MediaURLs, error)
	UploadText(ctx context.Context, nodeID string, text string) (graph.MediaURLs, error)
}

// Enricher rewrites a composed prompt into an art-directed one. It must not
// fail: implementations fall back to the input prompt on any error.
type Enricher interface {
	Enrich(ctx context.Context, prompt string, nodeType graph.NodeType) string
}

type handlerFunc func(ctx context.Context, node *graph.Node, inputs resolve.Inputs, canvasMemory string) (*graph.MediaResult, error)

// Executor dispatches node execution to the handler registered for the
// node's type.
type Executor struct {
	backend  backend.Backend
	store    Store
	enricher Enricher
	handlers map[graph.NodeType]handlerFunc
}

// New builds an Executor with all seven node-type handlers registered.
func New(b backend.Backend, store Store, enricher Enricher) *Executor {
	e := &Executor{backend: b, store: store, enricher: enricher}
	e.handlers = map[graph.NodeType]handlerFunc{
		graph.NodeTypeGenerateText:   e.executeText,
		graph.NodeTypeGenerateImage:  e.executeImage,
		graph.NodeTypeGenerateVideo:  e.executeVideo,
		graph.NodeTypeGenerateSpeech: e.executeSpeech,
		graph.NodeTypeGenerateMusic:  e.executeMusic,
		graph.NodeTypeAnalyzeImage:   e.executeAnalyzeImage,
		graph.NodeTypeTransformImage: e.executeTransformImage,
	}
	return e
}

// Execute runs the node and returns its media result. Any error is reported
// by the caller as a node failure.
func (e *Executor) Execute(ctx context.Context, node *graph.Node, inputs resolve.Inputs, canvasMemory string) (*graph.MediaResult, error) {
	handler, ok := e.handlers[node.Type]
	if !ok {
		return nil, fmt.Errorf("no handler for node type %q", node.Type)
	}
	return handler(ctx, node, inputs, canvasMemory)
}

// joinTexts combines canvas memory, upstream text and the node's own prompt.
// Upstream text is primary (a prompt-writer node feeding this one), the
// node's prompt is secondary direction, canvas memory is background context.
func joinTexts(texts []string, nodePrompt, canvasMemory string) string {
	var upstream []string
	for _, t := range texts {
		if t != "" {
			upstream = append(upstream, t)
		}
	}
	joined := strings.Join(upstream, "\n")

	var parts []string
	if canvasMemory != "" {
		parts = append(parts, "Context:\n"+canvasMemory)
	}
	switch {
	case joined != "" && nodePrompt != "":
		parts = append(parts, joined+"\n\nAdditional direction: "+nodePrompt)
	case joined != "":
		parts = append(parts, joined)
	case nodePrompt != "":
		parts = append(parts, nodePrompt)
	}
	return strings.Join(parts, "\n\n")
}

// maybeEnrich rewrites the composed prompt unless the node opted out.
// Enrichment applies when enrich is true (the default for canvas nodes) or
// when a human overrode the prompt (human_edited). The second return is the
// pre-enrichment text, "" when the rewrite changed nothing.
func (e *Executor) maybeEnrich(ctx context.Context, node *graph.Node, prompt string) (string, string) {
	if !node.BoolParam("enrich", true) && !node.BoolParam("human_edited", false) {
		return prompt, ""
	}
	enriched := e.enricher.Enrich(ctx, prompt, node.Type)
	if enriched == prompt {
		return prompt, ""
	}
	return enriched, prompt
}

// buildResult allocates the result shell shared by every handler. The
// node's raw params ride along so a generation can be reproduced later.
func buildResult(node *graph.Node, prompt string, mediaType graph.MediaType, urls graph.MediaURLs) *graph.MediaResult {
	result := graph.NewMediaResult(mediaType, urls, prompt)
	result.GenerationParams = node.Params
	return result
}
