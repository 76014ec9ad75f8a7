// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command orchestrator starts the Pixel-Groove HTTP server.
//
// Configuration comes from environment variables (see the config package
// for the full list):
//
//   - PIXELGROOVE_PORT: HTTP server port (default: 12600)
//   - PIXELGROOVE_DATA_DIR: BadgerDB directory (default: ./data)
//   - MODEL_BACKEND_TYPE: generation backend - openai, gateway (default: openai)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: tracing collector (off when empty)
//
// Usage:
//
//	go build -o orchestrator ./cmd/orchestrator
//	./orchestrator
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/themariolinml/Pixel-Groove/services/orchestrator"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.FromEnv()

	slog.Info("starting pixelgroove orchestrator",
		"port", cfg.Port,
		"backend", cfg.BackendType,
		"data_dir", cfg.DataDir,
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("failed to create orchestrator: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("orchestrator error: %v", err)
	}
}
