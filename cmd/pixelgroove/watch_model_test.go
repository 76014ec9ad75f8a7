// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themariolinml/Pixel-Groove/services/engine/events"
)

// step feeds one message through Update and returns the advanced model.
func step(t *testing.T, m watchModel, msg tea.Msg) (watchModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(watchModel)
	require.True(t, ok, "Update returned %T", next)
	return wm, cmd
}

func TestWatchModel_NodeLifecycle(t *testing.T) {
	m := newWatchModel("e1", make(chan tea.Msg))

	m, _ = step(t, m, eventMsg{event: events.Run("e1", events.TypeStarted, "", nil)})
	assert.True(t, m.connected)
	assert.Empty(t, m.order)

	m, _ = step(t, m, eventMsg{event: events.Run("e1", events.TypeNodeStarted, "n1", nil)})
	m, _ = step(t, m, eventMsg{event: events.Run("e1", events.TypeNodeCompleted, "n1", map[string]any{"media_type": "image"})})
	m, _ = step(t, m, eventMsg{event: events.Run("e1", events.TypeNodeStarted, "n2", nil)})

	require.Equal(t, []string{"n1", "n2"}, m.order)
	assert.Equal(t, lineCompleted, m.lines["n1"].status)
	assert.Equal(t, "image", m.lines["n1"].detail)
	assert.Equal(t, lineRunning, m.lines["n2"].status)
	assert.False(t, m.done)

	view := m.View()
	assert.Contains(t, view, "watching e1")
	assert.Contains(t, view, "n1")
	assert.Contains(t, view, "completed")
}

func TestWatchModel_TerminalEventQuits(t *testing.T) {
	m := newWatchModel("e1", make(chan tea.Msg))

	m, cmd := step(t, m, eventMsg{event: events.Run("e1", events.TypeCompleted, "", nil)})
	assert.True(t, m.done)
	assert.Equal(t, "run completed", m.final)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	assert.Contains(t, m.View(), "run completed")
}

func TestWatchModel_FailureCarriesError(t *testing.T) {
	m := newWatchModel("e1", make(chan tea.Msg))

	m, _ = step(t, m, eventMsg{event: events.Run("e1", events.TypeNodeFailed, "n1", map[string]any{"error": "backend down"})})
	m, _ = step(t, m, eventMsg{event: events.Run("e1", events.TypeFailed, "", map[string]any{"error": "One or more nodes failed"})})

	assert.Equal(t, lineFailed, m.lines["n1"].status)
	assert.Equal(t, "backend down", m.lines["n1"].detail)
	assert.True(t, m.done)
	assert.Contains(t, m.final, "One or more nodes failed")
}

func TestWatchModel_BatchRun(t *testing.T) {
	m := newWatchModel("b1", make(chan tea.Msg))

	m, _ = step(t, m, eventMsg{event: events.Batch("b1", events.TypeBatchStarted, "", "", nil)})
	m, _ = step(t, m, eventMsg{event: events.Batch("b1", events.TypeNodeStarted, "g1", "n1", nil)})
	m, _ = step(t, m, eventMsg{event: events.Batch("b1", events.TypeNodeCompleted, "g1", "n1", map[string]any{"media_type": "text"})})
	m, _ = step(t, m, eventMsg{event: events.Batch("b1", events.TypeGraphCompleted, "g1", "", nil)})
	m, _ = step(t, m, eventMsg{event: events.Batch("b1", events.TypeGraphFailed, "g2", "", map[string]any{"error": "node exploded"})})
	m, _ = step(t, m, eventMsg{event: events.Batch("b1", events.TypeBatchCompleted, "", "", map[string]any{
		"graph_outcomes": map[string]any{"g1": "completed", "g2": "failed"},
	})})

	// Node rows are keyed per graph; graph rows stand alone.
	require.Equal(t, []string{"g1/n1", "g1", "g2"}, m.order)
	assert.Equal(t, lineCompleted, m.lines["g1"].status)
	assert.Equal(t, lineFailed, m.lines["g2"].status)
	assert.True(t, m.done)
	assert.Equal(t, "batch finished: 1 completed, 1 failed", m.final)
}

func TestWatchModel_SkippedNode(t *testing.T) {
	m := newWatchModel("b1", make(chan tea.Msg))

	m, _ = step(t, m, eventMsg{event: events.Batch("b1", events.TypeNodeSkipped, "g1", "n1", map[string]any{"reason": "already completed"})})

	assert.Equal(t, lineSkipped, m.lines["g1/n1"].status)
	assert.Equal(t, "already completed", m.lines["g1/n1"].detail)
}

func TestWatchModel_StreamError(t *testing.T) {
	m := newWatchModel("e1", make(chan tea.Msg))

	m, cmd := step(t, m, streamErrMsg{err: errors.New("connection refused")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Contains(t, m.View(), "connection refused")
}

func TestWatchModel_EOFBeforeTerminal(t *testing.T) {
	m := newWatchModel("e1", make(chan tea.Msg))

	m, _ = step(t, m, eventMsg{event: events.Run("e1", events.TypeNodeStarted, "n1", nil)})
	m, cmd := step(t, m, streamDoneMsg{})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Contains(t, m.final, "stream closed")
}

func TestWatchModel_QuitKey(t *testing.T) {
	m := newWatchModel("e1", make(chan tea.Msg))

	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestBatchSummary_PendingLeftovers(t *testing.T) {
	got := batchSummary(map[string]any{"graph_outcomes": map[string]any{
		"g1": "completed",
		"g2": "pending",
	}})
	assert.Equal(t, "batch finished: 1 completed, 0 failed, 1 pending", got)
}
