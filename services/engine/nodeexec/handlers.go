// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodeexec

import (
	"context"
	"errors"
	"strings"

	"github.com/themariolinml/Pixel-Groove/services/engine/backend"
	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
	"github.com/themariolinml/Pixel-Groove/services/engine/resolve"
)

// maxReferenceImages caps how many upstream images seed a reference-mode
// video call.
const maxReferenceImages = 3

func (e *Executor) executeText(ctx context.Context, node *graph.Node, inputs resolve.Inputs, canvasMemory string) (*graph.MediaResult, error) {
	prompt := joinTexts(inputs.Texts, node.Prompt(), canvasMemory)
	prompt, original := e.maybeEnrich(ctx, node, prompt)

	text, err := e.backend.GenerateText(ctx, prompt, backend.ParamsFromNode(node.Params), backend.MultimodalInputs{
		Images: inputs.Images,
		Audios: inputs.Audios,
		Videos: inputs.Videos,
	})
	if err != nil {
		return nil, err
	}
	urls, err := e.store.UploadText(ctx, node.ID, text)
	if err != nil {
		return nil, err
	}
	result := buildResult(node, prompt, graph.MediaTypeText, urls)
	result.OriginalPrompt = original
	return result, nil
}

func (e *Executor) executeImage(ctx context.Context, node *graph.Node, inputs resolve.Inputs, canvasMemory string) (*graph.MediaResult, error) {
	prompt := joinTexts(inputs.Texts, node.Prompt(), canvasMemory)
	prompt, original := e.maybeEnrich(ctx, node, prompt)

	data, err := e.backend.GenerateImage(ctx, prompt, backend.ParamsFromNode(node.Params), inputs.Images)
	if err != nil {
		return nil, err
	}
	urls, err := e.store.UploadImage(ctx, node.ID, data, "png")
	if err != nil {
		return nil, err
	}
	result := buildResult(node, prompt, graph.MediaTypeImage, urls)
	result.OriginalPrompt = original
	return result, nil
}

func (e *Executor) executeVideo(ctx context.Context, node *graph.Node, inputs resolve.Inputs, canvasMemory string) (*graph.MediaResult, error) {
	prompt := joinTexts(inputs.Texts, node.Prompt(), canvasMemory)
	prompt, original := e.maybeEnrich(ctx, node, prompt)

	var opts backend.VideoOptions
	switch {
	case node.BoolParam("reference_mode", false) && len(inputs.Images) > 0:
		refs := inputs.Images
		if len(refs) > maxReferenceImages {
			refs = refs[:maxReferenceImages]
		}
		opts.ReferenceImages = refs
	case len(inputs.Images) > 0:
		opts.FirstFrame = inputs.Images[0]
	}

	data, err := e.backend.GenerateVideo(ctx, prompt, backend.ParamsFromNode(node.Params), opts)
	if err != nil {
		return nil, err
	}
	urls, err := e.store.UploadVideo(ctx, node.ID, data, "mp4")
	if err != nil {
		return nil, err
	}
	result := buildResult(node, prompt, graph.MediaTypeVideo, urls)
	result.OriginalPrompt = original
	return result, nil
}

func (e *Executor) executeSpeech(ctx context.Context, node *graph.Node, inputs resolve.Inputs, canvasMemory string) (*graph.MediaResult, error) {
	text := joinTexts(inputs.Texts, node.Prompt(), canvasMemory)
	text, original := e.maybeEnrich(ctx, node, text)

	pcm, err := e.backend.GenerateSpeech(ctx, text, backend.ParamsFromNode(node.Params))
	if err != nil {
		return nil, err
	}
	urls, err := e.store.UploadAudio(ctx, node.ID, pcmToWAV(pcm, speechSampleRate, 1), "wav")
	if err != nil {
		return nil, err
	}
	result := buildResult(node, text, graph.MediaTypeAudio, urls)
	result.OriginalPrompt = original
	return result, nil
}

func (e *Executor) executeMusic(ctx context.Context, node *graph.Node, inputs resolve.Inputs, canvasMemory string) (*graph.MediaResult, error) {
	prompt := joinTexts(inputs.Texts, node.Prompt(), canvasMemory)
	prompt, original := e.maybeEnrich(ctx, node, prompt)

	pcm, err := e.backend.GenerateMusic(ctx, prompt, backend.ParamsFromNode(node.Params))
	if err != nil {
		return nil, err
	}
	urls, err := e.store.UploadAudio(ctx, node.ID, pcmToWAV(pcm, musicSampleRate, 2), "wav")
	if err != nil {
		return nil, err
	}
	result := buildResult(node, prompt, graph.MediaTypeAudio, urls)
	result.OriginalPrompt = original
	return result, nil
}

// executeAnalyzeImage runs vision over the first upstream image. The prompt
// is the node's own (or a generic description request), prefixed with raw
// canvas memory; analysis prompts are never enriched.
func (e *Executor) executeAnalyzeImage(ctx context.Context, node *graph.Node, inputs resolve.Inputs, canvasMemory string) (*graph.MediaResult, error) {
	if len(inputs.Images) == 0 {
		return nil, errors.New("Analyze Image requires an image input")
	}
	prompt := node.StringParam("prompt", "Describe this image in detail.")
	if canvasMemory != "" {
		prompt = strings.TrimSpace(canvasMemory + "\n" + prompt)
	}

	text, err := e.backend.AnalyzeImage(ctx, inputs.Images[0], prompt, backend.ParamsFromNode(node.Params))
	if err != nil {
		return nil, err
	}
	urls, err := e.store.UploadText(ctx, node.ID, text)
	if err != nil {
		return nil, err
	}
	return buildResult(node, prompt, graph.MediaTypeText, urls), nil
}

// executeTransformImage reworks the first upstream image. Multimodal image
// backends see the image directly in a single call; others describe it
// first and regenerate from the combined text.
func (e *Executor) executeTransformImage(ctx context.Context, node *graph.Node, inputs resolve.Inputs, canvasMemory string) (*graph.MediaResult, error) {
	if len(inputs.Images) == 0 {
		return nil, errors.New("Transform Image requires an image input")
	}
	prompt := joinTexts(inputs.Texts, node.Prompt(), canvasMemory)
	prompt, original := e.maybeEnrich(ctx, node, prompt)

	params := backend.ParamsFromNode(node.Params)
	var data []byte
	var err error
	if e.backend.Capabilities().MultimodalImage {
		data, err = e.backend.GenerateImage(ctx, prompt, params, inputs.Images)
	} else {
		description, derr := e.backend.AnalyzeImage(ctx, inputs.Images[0], "Describe this image concisely.", params)
		if derr != nil {
			return nil, derr
		}
		if prompt != "" {
			prompt = description + ". " + prompt
		} else {
			prompt = description
		}
		data, err = e.backend.GenerateImage(ctx, prompt, params, nil)
	}
	if err != nil {
		return nil, err
	}

	urls, err := e.store.UploadImage(ctx, node.ID, data, "png")
	if err != nil {
		return nil, err
	}
	result := buildResult(node, prompt, graph.MediaTypeImage, urls)
	result.OriginalPrompt = original
	return result, nil
}
