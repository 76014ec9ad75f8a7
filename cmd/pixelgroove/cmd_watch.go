// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/themariolinml/Pixel-Groove/pkg/logging"
	"github.com/themariolinml/Pixel-Groove/services/engine/events"
)

func runWatchCommand(cmd *cobra.Command, args []string) {
	id := args[0]
	base := serverBaseURL()

	// The live view owns the terminal, so records go to --log-dir only.
	logger := newCLILogger(true)
	defer logger.Close()

	var err error
	if watchJSONFlag {
		err = watchJSON(logger, base, id)
	} else {
		err = watchTUI(logger, base, id)
	}
	if err != nil {
		logger.Error("watch failed", "run_id", id, "error", err)
		fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
		os.Exit(1)
	}
}

// watchJSON streams raw events to stdout, one JSON object per line, until
// the run reaches a terminal state. Meant for piping into jq or log files.
func watchJSON(logger *logging.Logger, base, id string) error {
	ctx := context.Background()

	body, err := openRunStream(ctx, streamClient(), base, id)
	if err != nil {
		return err
	}
	defer body.Close()
	logger.Debug("stream opened", "server", base, "run_id", id)

	return forEachEvent(ctx, body, func(raw string, ev events.Event) error {
		fmt.Println(raw)
		return nil
	})
}

// watchTUI renders the live run view. A reader goroutine pumps decoded
// events into a channel the bubbletea model drains one message at a time;
// cancelling ctx on exit unblocks the pump if the user quits mid-run.
func watchTUI(logger *logging.Logger, base, id string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan tea.Msg, 64)
	send := func(msg tea.Msg) {
		select {
		case ch <- msg:
		case <-ctx.Done():
		}
	}

	go func() {
		body, err := openRunStream(ctx, streamClient(), base, id)
		if err != nil {
			send(streamErrMsg{err: err})
			return
		}
		defer body.Close()
		logger.Debug("stream opened", "server", base, "run_id", id)

		err = forEachEvent(ctx, body, func(raw string, ev events.Event) error {
			send(eventMsg{event: ev})
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("stream read failed", "run_id", id, "error", err)
			send(streamErrMsg{err: err})
			return
		}
		logger.Debug("stream closed", "run_id", id)
		send(streamDoneMsg{})
	}()

	p := tea.NewProgram(newWatchModel(id, ch), tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	m, ok := finalModel.(watchModel)
	if !ok {
		return fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}
	return m.err
}
