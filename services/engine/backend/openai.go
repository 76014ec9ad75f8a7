// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible backend. BaseURL may point
// at any server speaking the OpenAI API.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	TextModel   string
	VisionModel string
	ImageModel  string
	SpeechModel string
}

func (c *OpenAIConfig) applyDefaults() {
	if c.TextModel == "" {
		c.TextModel = openai.GPT4oMini
	}
	if c.VisionModel == "" {
		c.VisionModel = c.TextModel
	}
	if c.ImageModel == "" {
		c.ImageModel = openai.CreateImageModelDallE3
	}
	if c.SpeechModel == "" {
		c.SpeechModel = string(openai.TTSModel1)
	}
}

// openAIBackend serves text, vision, image and speech through an
// OpenAI-compatible API. Video and music are not supported here; deployments
// route those to the media gateway.
type openAIBackend struct {
	client *openai.Client
	cfg    OpenAIConfig
}

var _ Backend = (*openAIBackend)(nil)

// NewOpenAI builds the OpenAI-compatible backend.
func NewOpenAI(cfg OpenAIConfig) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai backend: API key is required")
	}
	cfg.applyDefaults()
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	slog.Info("Initializing OpenAI-compatible backend",
		"text_model", cfg.TextModel, "image_model", cfg.ImageModel, "base_url", cfg.BaseURL)
	return &openAIBackend{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

func (b *openAIBackend) Capabilities() Capabilities {
	return Capabilities{}
}

func (b *openAIBackend) GenerateText(ctx context.Context, prompt string, params Params, inputs MultimodalInputs) (string, error) {
	model := params.Model
	if model == "" {
		model = b.cfg.TextModel
	}
	if len(inputs.Audios) > 0 || len(inputs.Videos) > 0 {
		slog.Warn("openai backend ignores audio/video inputs",
			"audios", len(inputs.Audios), "videos", len(inputs.Videos))
	}

	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(inputs.Images) > 0 {
		for _, img := range inputs.Images {
			msg.MultiContent = append(msg.MultiContent, imagePart(img))
		}
		msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: prompt,
		})
	} else {
		msg.Content = prompt
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    []openai.ChatCompletionMessage{msg},
		Temperature: temperatureOrDefault(params.Temperature, 0.7),
		TopP:        topPOrDefault(params.TopP),
	}
	if params.MaxTokens > 0 {
		req.MaxCompletionTokens = params.MaxTokens
	}
	switch params.OutputMode {
	case "structured":
		if len(params.OutputFields) > 0 {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   "node_output",
					Schema: buildOutputSchema(params.OutputFields),
					Strict: true,
				},
			}
		}
	case "json":
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate_text: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate_text: empty response from API")
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *openAIBackend) GenerateImage(ctx context.Context, prompt string, params Params, images [][]byte) ([]byte, error) {
	if len(images) > 0 {
		slog.Debug("openai backend ignores upstream images for image generation", "count", len(images))
	}
	model := params.Model
	if model == "" {
		model = b.cfg.ImageModel
	}
	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          model,
		N:              1,
		Size:           imageSize(params.AspectRatio),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}
	resp, err := b.client.CreateImage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate_image: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("generate_image: empty response from API")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("generate_image: decode payload: %w", err)
	}
	return data, nil
}

func (b *openAIBackend) GenerateVideo(ctx context.Context, prompt string, params Params, opts VideoOptions) ([]byte, error) {
	return nil, fmt.Errorf("generate_video: %w", ErrUnsupported)
}

func (b *openAIBackend) GenerateSpeech(ctx context.Context, text string, params Params) ([]byte, error) {
	voice := openai.VoiceAlloy
	if params.Voice != "" {
		voice = openai.SpeechVoice(params.Voice)
	}
	model := openai.SpeechModel(b.cfg.SpeechModel)
	if params.Model != "" {
		model = openai.SpeechModel(params.Model)
	}
	resp, err := b.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, fmt.Errorf("generate_speech: %w", err)
	}
	defer resp.Close()
	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("generate_speech: read audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("generate_speech: empty response from API")
	}
	return pcm, nil
}

func (b *openAIBackend) GenerateMusic(ctx context.Context, prompt string, params Params) ([]byte, error) {
	return nil, fmt.Errorf("generate_music: %w", ErrUnsupported)
}

func (b *openAIBackend) AnalyzeImage(ctx context.Context, image []byte, prompt string, params Params) (string, error) {
	model := params.Model
	if model == "" {
		model = b.cfg.VisionModel
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				imagePart(image),
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
			},
		}},
		Temperature: temperatureOrDefault(params.Temperature, 0.4),
	}
	if params.MaxTokens > 0 {
		req.MaxCompletionTokens = params.MaxTokens
	}
	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("analyze_image: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("analyze_image: empty response from API")
	}
	return resp.Choices[0].Message.Content, nil
}

func imagePart(img []byte) openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
			Detail: openai.ImageURLDetailAuto,
		},
	}
}

func temperatureOrDefault(t, def float64) float32 {
	if t <= 0 {
		return float32(def)
	}
	return float32(t)
}

func topPOrDefault(p float64) float32 {
	if p <= 0 {
		return 0.95
	}
	return float32(p)
}

// imageSize maps the canvas aspect ratios onto the sizes the image API
// accepts.
func imageSize(aspectRatio string) string {
	switch aspectRatio {
	case "16:9":
		return openai.CreateImageSize1792x1024
	case "9:16":
		return openai.CreateImageSize1024x1792
	default:
		return openai.CreateImageSize1024x1024
	}
}

// buildOutputSchema converts the node's output field definitions into a
// JSON Schema document for strict structured output. Field defs carry
// {name, type} with optional nested {items} for arrays and {fields} for
// objects.
func buildOutputSchema(fields []map[string]any) json.RawMessage {
	doc, _ := json.Marshal(objectSchema(fields))
	return doc
}

func objectSchema(fields []map[string]any) map[string]any {
	properties := map[string]any{}
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		name, ok := f["name"].(string)
		if !ok || name == "" {
			continue
		}
		properties[name] = fieldSchema(f)
		required = append(required, name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func fieldSchema(f map[string]any) map[string]any {
	fieldType, _ := f["type"].(string)
	switch fieldType {
	case "object":
		nested, _ := f["fields"].([]any)
		var defs []map[string]any
		for _, n := range nested {
			if m, ok := n.(map[string]any); ok {
				defs = append(defs, m)
			}
		}
		return objectSchema(defs)
	case "array":
		switch items := f["items"].(type) {
		case map[string]any:
			return map[string]any{"type": "array", "items": fieldSchema(items)}
		case string:
			return map[string]any{"type": "array", "items": map[string]any{"type": jsonType(items)}}
		default:
			return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
		}
	default:
		return map[string]any{"type": jsonType(fieldType)}
	}
}

func jsonType(t string) string {
	switch t {
	case "string", "number", "integer", "boolean":
		return t
	default:
		return "string"
	}
}
