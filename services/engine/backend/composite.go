// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import "context"

// composite routes each modality to the backend that serves it best: text,
// vision and speech stay on the language backend; video, music and
// multimodal image generation go to the media backend when one is
// configured.
type composite struct {
	language Backend
	media    Backend
}

var _ Backend = (*composite)(nil)

// NewComposite combines a language backend with an optional media backend.
// With media nil every call falls through to language, whose unsupported
// modalities fail with ErrUnsupported.
func NewComposite(language, media Backend) Backend {
	if media == nil {
		return language
	}
	return &composite{language: language, media: media}
}

func (c *composite) Capabilities() Capabilities {
	caps := c.language.Capabilities()
	mediaCaps := c.media.Capabilities()
	caps.MultimodalImage = caps.MultimodalImage || mediaCaps.MultimodalImage
	caps.Video = caps.Video || mediaCaps.Video
	caps.Music = caps.Music || mediaCaps.Music
	return caps
}

func (c *composite) GenerateText(ctx context.Context, prompt string, params Params, inputs MultimodalInputs) (string, error) {
	return c.language.GenerateText(ctx, prompt, params, inputs)
}

func (c *composite) AnalyzeImage(ctx context.Context, image []byte, prompt string, params Params) (string, error) {
	return c.language.AnalyzeImage(ctx, image, prompt, params)
}

func (c *composite) GenerateSpeech(ctx context.Context, text string, params Params) ([]byte, error) {
	return c.language.GenerateSpeech(ctx, text, params)
}

func (c *composite) GenerateImage(ctx context.Context, prompt string, params Params, images [][]byte) ([]byte, error) {
	// Source images only matter to a backend that can consume them.
	if len(images) > 0 && c.media.Capabilities().MultimodalImage {
		return c.media.GenerateImage(ctx, prompt, params, images)
	}
	return c.language.GenerateImage(ctx, prompt, params, nil)
}

func (c *composite) GenerateVideo(ctx context.Context, prompt string, params Params, opts VideoOptions) ([]byte, error) {
	if c.media.Capabilities().Video {
		return c.media.GenerateVideo(ctx, prompt, params, opts)
	}
	return c.language.GenerateVideo(ctx, prompt, params, opts)
}

func (c *composite) GenerateMusic(ctx context.Context, prompt string, params Params) ([]byte, error) {
	if c.media.Capabilities().Music {
		return c.media.GenerateMusic(ctx, prompt, params)
	}
	return c.language.GenerateMusic(ctx, prompt, params)
}
