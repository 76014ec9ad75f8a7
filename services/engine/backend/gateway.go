// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// defaultPollInterval is how often a pending video operation is re-checked.
// Video renders take minutes; the semaphore slot stays held across polls.
const defaultPollInterval = 5 * time.Second

// musicBytesPerSecond is the PCM rate of the music endpoint:
// 48 kHz, 16-bit, stereo.
const musicBytesPerSecond = 48000 * 2 * 2

// GatewayConfig configures the media gateway client.
type GatewayConfig struct {
	BaseURL string

	// VideoModel and MusicModel are used when a node names no model of
	// its own.
	VideoModel string
	MusicModel string

	// PollInterval overrides the video polling cadence; zero keeps the
	// default.
	PollInterval time.Duration
}

// gatewayBackend talks to the media gateway over REST. The gateway owns the
// long-running modalities: video jobs are polled until done, music streams
// raw PCM chunks, and its image endpoint accepts source images for
// multimodal generation.
type gatewayBackend struct {
	baseURL      string
	videoModel   string
	musicModel   string
	client       *http.Client
	pollInterval time.Duration
}

var _ Backend = (*gatewayBackend)(nil)

// NewGateway builds the media gateway backend.
func NewGateway(cfg GatewayConfig) (Backend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway backend: base URL is required")
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &gatewayBackend{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		videoModel:   cfg.VideoModel,
		musicModel:   cfg.MusicModel,
		client:       &http.Client{Timeout: 30 * time.Second},
		pollInterval: interval,
	}, nil
}

func (b *gatewayBackend) Capabilities() Capabilities {
	return Capabilities{MultimodalImage: true, Video: true, Music: true}
}

func (b *gatewayBackend) GenerateText(ctx context.Context, prompt string, params Params, inputs MultimodalInputs) (string, error) {
	return "", fmt.Errorf("generate_text: %w", ErrUnsupported)
}

func (b *gatewayBackend) AnalyzeImage(ctx context.Context, image []byte, prompt string, params Params) (string, error) {
	return "", fmt.Errorf("analyze_image: %w", ErrUnsupported)
}

func (b *gatewayBackend) GenerateSpeech(ctx context.Context, text string, params Params) ([]byte, error) {
	return nil, fmt.Errorf("generate_speech: %w", ErrUnsupported)
}

type gatewayImageRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	AspectRatio string   `json:"aspect_ratio,omitempty"`
	ImageSize   string   `json:"image_size,omitempty"`
	Images      []string `json:"images,omitempty"`
}

type gatewayImageResponse struct {
	Image string `json:"image"`
}

func (b *gatewayBackend) GenerateImage(ctx context.Context, prompt string, params Params, images [][]byte) ([]byte, error) {
	req := gatewayImageRequest{
		Prompt:      prompt,
		Model:       params.Model,
		AspectRatio: params.AspectRatio,
		ImageSize:   params.ImageSize,
		Images:      encodeAll(images),
	}
	var resp gatewayImageResponse
	if err := b.postJSON(ctx, "/v1/image", req, &resp); err != nil {
		return nil, fmt.Errorf("generate_image: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Image)
	if err != nil {
		return nil, fmt.Errorf("generate_image: decode payload: %w", err)
	}
	return data, nil
}

type gatewayVideoRequest struct {
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	FirstFrame      string   `json:"first_frame,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
}

type gatewayOperation struct {
	OperationID string `json:"operation_id"`
	Done        bool   `json:"done"`
	Error       string `json:"error,omitempty"`
	ResultURL   string `json:"result_url,omitempty"`
}

// GenerateVideo submits a render job and polls the operation until it is
// done, then downloads the bytes. Reference assets take precedence over a
// first-frame seed, and at most three are sent.
func (b *gatewayBackend) GenerateVideo(ctx context.Context, prompt string, params Params, opts VideoOptions) ([]byte, error) {
	aspect := params.AspectRatio
	if aspect == "" {
		aspect = "16:9"
	}
	model := params.Model
	if model == "" {
		model = b.videoModel
	}
	req := gatewayVideoRequest{
		Prompt:      prompt,
		Model:       model,
		AspectRatio: aspect,
	}
	if len(opts.ReferenceImages) > 0 {
		refs := opts.ReferenceImages
		if len(refs) > 3 {
			refs = refs[:3]
		}
		req.ReferenceImages = encodeAll(refs)
	} else if len(opts.FirstFrame) > 0 {
		req.FirstFrame = base64.StdEncoding.EncodeToString(opts.FirstFrame)
	}

	var op gatewayOperation
	if err := b.postJSON(ctx, "/v1/video", req, &op); err != nil {
		return nil, fmt.Errorf("generate_video: %w", err)
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("generate_video: %w", ctx.Err())
		case <-ticker.C:
		}
		if err := b.getJSON(ctx, "/v1/operations/"+op.OperationID, &op); err != nil {
			return nil, fmt.Errorf("generate_video: poll: %w", err)
		}
	}
	if op.Error != "" {
		return nil, fmt.Errorf("generate_video: %s", op.Error)
	}
	if op.ResultURL == "" {
		return nil, fmt.Errorf("generate_video: operation finished without a result")
	}
	return b.download(ctx, op.ResultURL)
}

type gatewayMusicRequest struct {
	Prompt   string  `json:"prompt"`
	Model    string  `json:"model,omitempty"`
	Duration float64 `json:"duration"`
}

// GenerateMusic streams PCM chunks from the gateway and concatenates them
// until the requested duration's worth of audio has arrived.
func (b *gatewayBackend) GenerateMusic(ctx context.Context, prompt string, params Params) ([]byte, error) {
	duration := params.Duration
	if duration <= 0 {
		duration = 10
	}
	model := params.Model
	if model == "" {
		model = b.musicModel
	}
	body, err := json.Marshal(gatewayMusicRequest{Prompt: prompt, Model: model, Duration: duration})
	if err != nil {
		return nil, fmt.Errorf("generate_music: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/music", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generate_music: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Streaming response, so bypass the client-wide timeout and rely on ctx.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate_music: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generate_music: %s", readError(resp))
	}

	target := int64(duration * musicBytesPerSecond)
	pcm, err := io.ReadAll(io.LimitReader(resp.Body, target))
	if err != nil {
		return nil, fmt.Errorf("generate_music: read stream: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("generate_music: empty stream from gateway")
	}
	slog.Debug("music stream collected", "bytes", len(pcm), "target", target)
	return pcm, nil
}

func (b *gatewayBackend) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s", readError(resp))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *gatewayBackend) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", readError(resp))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *gatewayBackend) download(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "/") {
		url = b.baseURL + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: %s", url, readError(resp))
	}
	return io.ReadAll(resp.Body)
}

func readError(resp *http.Response) string {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	text := strings.TrimSpace(string(msg))
	if text == "" {
		return resp.Status
	}
	return resp.Status + ": " + text
}

func encodeAll(blobs [][]byte) []string {
	if len(blobs) == 0 {
		return nil
	}
	encoded := make([]string, len(blobs))
	for i, blob := range blobs {
		encoded[i] = base64.StdEncoding.EncodeToString(blob)
	}
	return encoded
}
