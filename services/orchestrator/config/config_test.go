// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFromEnv_Defaults verifies a bare environment yields the documented
// defaults, with MediaDir derived from DataDir.
func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"PIXELGROOVE_PORT", "PIXELGROOVE_DATA_DIR", "PIXELGROOVE_MEDIA_DIR",
		"MODEL_BACKEND_TYPE",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, 12600, cfg.Port)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, filepath.Join("./data", "media"), cfg.MediaDir)
	assert.Equal(t, "openai", cfg.BackendType)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
}

// TestFromEnv_CORSOrigins verifies the comma-separated origin list is split
// and trimmed.
func TestFromEnv_CORSOrigins(t *testing.T) {
	t.Setenv("PIXELGROOVE_CORS_ORIGINS", "https://studio.example.com, https://canvas.example.com ,")

	cfg := FromEnv()

	assert.Equal(t,
		[]string{"https://studio.example.com", "https://canvas.example.com"},
		cfg.CORSOrigins)
}

// TestFromEnv_Overrides verifies environment values win over defaults.
func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PIXELGROOVE_PORT", "9001")
	t.Setenv("PIXELGROOVE_DATA_DIR", "/var/lib/pixelgroove")
	t.Setenv("PIXELGROOVE_MEDIA_DIR", "/srv/media")
	t.Setenv("MODEL_BACKEND_TYPE", "gateway")
	t.Setenv("MODEL_GATEWAY_URL", "http://gateway:8000")
	t.Setenv("VIDEO_MODEL", "veo-3")

	cfg := FromEnv()

	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "/var/lib/pixelgroove", cfg.DataDir)
	assert.Equal(t, "/srv/media", cfg.MediaDir)
	assert.Equal(t, "gateway", cfg.BackendType)
	assert.Equal(t, "http://gateway:8000", cfg.GatewayURL)
	assert.Equal(t, "veo-3", cfg.VideoModel)
}

// TestFromEnv_BadPortFallsBack verifies a non-numeric port keeps the default.
func TestFromEnv_BadPortFallsBack(t *testing.T) {
	t.Setenv("PIXELGROOVE_PORT", "not-a-port")

	assert.Equal(t, 12600, FromEnv().Port)
}

// TestWithDefaults_MediaDirFollowsCustomDataDir verifies the derived media
// path tracks an explicit data directory.
func TestWithDefaults_MediaDirFollowsCustomDataDir(t *testing.T) {
	cfg := Config{DataDir: "/tmp/pg"}.WithDefaults()

	assert.Equal(t, filepath.Join("/tmp/pg", "media"), cfg.MediaDir)
}
