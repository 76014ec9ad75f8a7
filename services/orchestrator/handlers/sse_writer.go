// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/themariolinml/Pixel-Groove/services/engine/events"
)

// SSEWriter writes execution events to an HTTP response in SSE framing.
//
// Each event is one `data: <json>` block; there is no `event:` line, the
// consumer dispatches on the JSON `event_type` field. Every write flushes
// so events reach the client as they happen rather than when the run ends.
//
// Implementations must be safe for concurrent use: the keep-alive ticker
// writes from a different goroutine than the event loop.
type SSEWriter interface {
	// WriteEvent serializes one event and flushes it.
	WriteEvent(ev events.Event) error

	// WriteKeepAlive sends an SSE comment (": ping") to hold idle
	// connections open through proxies. Comments are invisible to
	// clients.
	WriteKeepAlive() error
}

type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

var _ SSEWriter = (*sseWriter)(nil)

// NewSSEWriter wraps a ResponseWriter for SSE output. The caller sets the
// stream headers first via SetSSEHeaders. Fails when the writer cannot
// flush, which would silently buffer the whole stream.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) WriteEvent(ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders configures the response for event streaming. Must run
// before the first write. X-Accel-Buffering disables nginx buffering,
// which would otherwise hold events until the stream closes.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
