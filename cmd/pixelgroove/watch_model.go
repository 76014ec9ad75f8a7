// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/themariolinml/Pixel-Groove/services/engine/events"
)

// --- Messages ---

// eventMsg carries one decoded run event from the stream pump.
type eventMsg struct {
	event events.Event
}

// streamErrMsg reports a failure to open or read the stream.
type streamErrMsg struct {
	err error
}

// streamDoneMsg signals EOF. Normally the terminal event arrives first and
// this is never seen; it covers a server that drops the stream mid-run.
type streamDoneMsg struct{}

// --- Styles ---

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	skippedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// --- Model ---

type lineStatus int

const (
	lineRunning lineStatus = iota
	lineSkipped
	lineCompleted
	lineFailed
)

// nodeLine is one row of the live view: a node, or a whole member graph
// on batch runs.
type nodeLine struct {
	key    string
	status lineStatus
	detail string
}

// watchModel renders a run's event stream as per-node status lines.
//
// Events arrive over the channel one message at a time via waitForEvent;
// the model re-arms the read after each event until a terminal event, a
// stream error, or the user quits.
type watchModel struct {
	runID  string
	events <-chan tea.Msg

	spinner   spinner.Model
	connected bool

	order []string
	lines map[string]*nodeLine

	done       bool
	final      string
	finalStyle lipgloss.Style
	err        error
}

func newWatchModel(runID string, events <-chan tea.Msg) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle

	return watchModel{
		runID:   runID,
		events:  events,
		spinner: s,
		lines:   make(map[string]*nodeLine),
	}
}

// waitForEvent blocks on the stream pump channel and delivers the next
// message into the bubbletea loop.
func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// Init implements tea.Model.
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// Update implements tea.Model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(msg.event)
		if m.done {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case streamErrMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit

	case streamDoneMsg:
		if !m.done {
			m.finish("stream closed before the run finished", cancelledStyle)
		}
		return m, tea.Quit
	}

	return m, nil
}

// apply folds one run event into the view state.
func (m *watchModel) apply(ev events.Event) {
	m.connected = true

	key := ev.NodeID
	if ev.GraphID != "" && ev.NodeID != "" {
		key = ev.GraphID + "/" + ev.NodeID
	}

	switch ev.Type {
	case events.TypeStarted, events.TypeBatchStarted:
		// Connection confirmation only; nodes announce themselves.

	case events.TypeNodeStarted:
		m.upsert(key, lineRunning, "")
	case events.TypeNodeSkipped:
		m.upsert(key, lineSkipped, stringField(ev.Data, "reason"))
	case events.TypeNodeCompleted:
		m.upsert(key, lineCompleted, stringField(ev.Data, "media_type"))
	case events.TypeNodeFailed:
		m.upsert(key, lineFailed, stringField(ev.Data, "error"))

	case events.TypeGraphCompleted:
		m.upsert(ev.GraphID, lineCompleted, "all nodes done")
	case events.TypeGraphFailed:
		m.upsert(ev.GraphID, lineFailed, stringField(ev.Data, "error"))

	case events.TypeCompleted:
		m.finish("run completed", completedStyle)
	case events.TypeFailed:
		m.finish("run failed: "+stringField(ev.Data, "error"), failedStyle)
	case events.TypeCancelled, events.TypeBatchCancelled:
		m.finish("run cancelled", cancelledStyle)
	case events.TypeBatchCompleted:
		m.finish(batchSummary(ev.Data), completedStyle)
	}
}

func (m *watchModel) upsert(key string, status lineStatus, detail string) {
	if key == "" {
		return
	}
	if ln, ok := m.lines[key]; ok {
		ln.status = status
		if detail != "" {
			ln.detail = detail
		}
		return
	}
	m.lines[key] = &nodeLine{key: key, status: status, detail: detail}
	m.order = append(m.order, key)
}

func (m *watchModel) finish(final string, style lipgloss.Style) {
	m.done = true
	m.final = final
	m.finalStyle = style
}

// View implements tea.Model.
func (m watchModel) View() string {
	if m.err != nil {
		return failedStyle.Render("✗ "+m.err.Error()) + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("watching "+m.runID) + "\n\n")

	if !m.connected {
		b.WriteString("  " + m.spinner.View() + " connecting\n")
	}

	for _, key := range m.order {
		b.WriteString("  " + renderLine(m.lines[key]) + "\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.finalStyle.Render(m.final) + "\n")
	} else {
		b.WriteString(hintStyle.Render("q to quit") + "\n")
	}
	return b.String()
}

func renderLine(ln *nodeLine) string {
	var icon, label string
	var style lipgloss.Style

	switch ln.status {
	case lineRunning:
		icon, label, style = "●", "running", runningStyle
	case lineSkipped:
		icon, label, style = "○", "skipped", skippedStyle
	case lineCompleted:
		icon, label, style = "✓", "completed", completedStyle
	case lineFailed:
		icon, label, style = "✗", "failed", failedStyle
	}

	line := fmt.Sprintf("%s %s  %s", icon, ln.key, label)
	if ln.detail != "" {
		line += "  " + ln.detail
	}
	return style.Render(line)
}

// batchSummary condenses the final per-graph outcome map into one line.
func batchSummary(data map[string]any) string {
	outcomes, _ := data["graph_outcomes"].(map[string]any)

	var completed, failed int
	for _, v := range outcomes {
		switch s, _ := v.(string); s {
		case "completed":
			completed++
		case "failed":
			failed++
		}
	}

	summary := fmt.Sprintf("batch finished: %d completed, %d failed", completed, failed)
	if other := len(outcomes) - completed - failed; other > 0 {
		summary += fmt.Sprintf(", %d pending", other)
	}
	return summary
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return s
}
