// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/themariolinml/Pixel-Groove/services/engine/events"
)

// streamClient returns an HTTP client for event streams. No Timeout: a run
// can legitimately stay open for many minutes while videos render.
func streamClient() *http.Client {
	return &http.Client{}
}

// openRunStream connects to the SSE stream for id. Execution IDs and batch
// IDs share one namespace from the user's point of view, so the executions
// endpoint is probed first and unknown IDs fall through to batches.
//
// The returned body is the live stream; the caller must close it.
func openRunStream(ctx context.Context, client *http.Client, base, id string) (io.ReadCloser, error) {
	paths := []string{
		fmt.Sprintf("%s/api/v1/executions/%s/events", base, id),
		fmt.Sprintf("%s/api/v1/batches/%s/events", base, id),
	}

	for _, url := range paths {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("could not reach %s: %w", base, err)
		}
		if resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			return nil, fmt.Errorf("server answered %s for %s", resp.Status, url)
		}
	}

	return nil, fmt.Errorf("no execution or batch %q on %s", id, base)
}

// parseEventLine decodes one SSE line. Returns nil for blank delimiter lines
// and ": ping" keepalive comments.
func parseEventLine(line string) (*events.Event, error) {
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
		return nil, nil
	}
	payload := strings.TrimPrefix(line, "data: ")

	var ev events.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, fmt.Errorf("malformed event %q: %w", line, err)
	}
	return &ev, nil
}

// forEachEvent reads SSE frames from r until a terminal event, EOF, or ctx
// cancellation, invoking fn with the payload and the decoded event for each
// data frame.
func forEachEvent(ctx context.Context, r io.Reader, fn func(raw string, ev events.Event) error) error {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		ev, err := parseEventLine(line)
		if err != nil {
			return err
		}
		if ev == nil {
			continue
		}

		if err := fn(strings.TrimPrefix(line, "data: "), *ev); err != nil {
			return err
		}
		if ev.Type.Terminal() {
			return nil
		}
	}
	return scanner.Err()
}
