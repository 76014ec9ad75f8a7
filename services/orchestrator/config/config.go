// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the server configuration from the environment.
//
// Every knob has a default so a bare `pixelgroove` start works for local
// development. The scheduler's per-node-type concurrency table is not here:
// it lives in an optional YAML file (SchedulerConfigPath) owned by the
// schedule package, which also hot-reloads it.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the orchestrator's configuration.
//
// Values can be populated from environment variables via FromEnv, or
// programmatically for testing. Zero values are filled in by WithDefaults.
type Config struct {
	// Port is the HTTP server port. Default: 12600
	Port int

	// DataDir is the BadgerDB directory. Default: "./data"
	DataDir string

	// MediaDir is the blob store root. Default: "<DataDir>/media"
	MediaDir string

	// PublicBaseURL prefixes media URLs when set (for example behind a
	// CDN). Empty keeps server-relative /media/... URLs.
	PublicBaseURL string

	// SchedulerConfigPath points at a YAML node-type concurrency override
	// file. The file is watched for changes; empty uses the built-in table.
	SchedulerConfigPath string

	// BackendType selects the generation backend.
	// Valid values: "openai", "gateway". Default: "openai"
	BackendType string

	// OpenAIAPIKey and OpenAIBaseURL configure the OpenAI-compatible
	// endpoint used for text, vision, image and speech calls.
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// GatewayURL is the media gateway base URL. Required when BackendType
	// is "gateway".
	GatewayURL string

	// Per-modality model names. Empty uses the backend's default.
	TextModel   string
	ImageModel  string
	VideoModel  string
	SpeechModel string
	MusicModel  string

	// OTelEndpoint is the OTLP collector address. Empty disables tracing.
	OTelEndpoint string

	// Influx settings configure the node-execution telemetry sink.
	// An empty URL disables it.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// GCSBucket enables the media mirror when set. GCSCredentialsFile
	// points at a service account key; empty uses ambient credentials.
	GCSBucket          string
	GCSCredentialsFile string

	// CORSOrigins lists the browser origins allowed to call the API.
	// Default: the local canvas dev servers. "*" allows everything.
	CORSOrigins []string

	// DisableMetrics skips Prometheus registration. Set by tests that
	// construct more than one service per process; duplicate promauto
	// registration panics.
	DisableMetrics bool
}

// FromEnv builds a Config from environment variables with defaults applied.
func FromEnv() Config {
	cfg := Config{
		Port:                getEnvInt("PIXELGROOVE_PORT", 12600),
		DataDir:             os.Getenv("PIXELGROOVE_DATA_DIR"),
		MediaDir:            os.Getenv("PIXELGROOVE_MEDIA_DIR"),
		PublicBaseURL:       os.Getenv("PIXELGROOVE_PUBLIC_BASE_URL"),
		SchedulerConfigPath: os.Getenv("PIXELGROOVE_SCHEDULER_CONFIG"),
		BackendType:         os.Getenv("MODEL_BACKEND_TYPE"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		GatewayURL:          os.Getenv("MODEL_GATEWAY_URL"),
		TextModel:           os.Getenv("TEXT_MODEL"),
		ImageModel:          os.Getenv("IMAGE_MODEL"),
		VideoModel:          os.Getenv("VIDEO_MODEL"),
		SpeechModel:         os.Getenv("SPEECH_MODEL"),
		MusicModel:          os.Getenv("MUSIC_MODEL"),
		OTelEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		InfluxURL:           os.Getenv("INFLUX_URL"),
		InfluxToken:         os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:           os.Getenv("INFLUX_ORG"),
		InfluxBucket:        os.Getenv("INFLUX_BUCKET"),
		GCSBucket:           os.Getenv("GCS_BUCKET"),
		GCSCredentialsFile:  os.Getenv("GCS_CREDENTIALS_FILE"),
	}
	if origins := os.Getenv("PIXELGROOVE_CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	return cfg.WithDefaults()
}

// WithDefaults returns a copy with zero-valued fields filled in. MediaDir
// derives from DataDir when unset so the two stay colocated.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = 12600
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.MediaDir == "" {
		c.MediaDir = filepath.Join(c.DataDir, "media")
	}
	if c.BackendType == "" {
		c.BackendType = "openai"
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	return c
}

// getEnvInt returns an environment variable as int, or defaultVal if not
// set or invalid.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
