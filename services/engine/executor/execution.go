// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package executor

import (
	"sync"
	"sync/atomic"

	"github.com/themariolinml/Pixel-Groove/services/engine/events"
)

// Status is the lifecycle state of one graph run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Execution tracks one graph run: its identity, the requested outputs, the
// cooperative cancel flag, and the full event history.
type Execution struct {
	ID            string
	GraphID       string
	OutputNodeIDs []string
	Force         bool

	cancelled atomic.Bool

	mu     sync.Mutex
	status Status
	events []events.Event
}

// NewExecution builds a pending run.
func NewExecution(id, graphID string, outputNodeIDs []string, force bool) *Execution {
	return &Execution{
		ID:            id,
		GraphID:       graphID,
		OutputNodeIDs: outputNodeIDs,
		Force:         force,
		status:        StatusPending,
	}
}

// Cancel requests a cooperative stop. The level in flight finishes; the
// run ends before the next level starts.
func (e *Execution) Cancel() {
	e.cancelled.Store(true)
}

// Cancelled reports whether a stop was requested.
func (e *Execution) Cancelled() bool {
	return e.cancelled.Load()
}

// Status returns the run's lifecycle state.
func (e *Execution) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Execution) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// Events returns a copy of everything emitted so far.
func (e *Execution) Events() []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]events.Event(nil), e.events...)
}

func (e *Execution) record(ev events.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}
