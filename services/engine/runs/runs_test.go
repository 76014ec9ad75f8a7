// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runs

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/themariolinml/Pixel-Groove/services/engine/events"
	"github.com/themariolinml/Pixel-Groove/services/engine/executor"
	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
	"github.com/themariolinml/Pixel-Groove/services/engine/schedule"
)

// fakeStore is an in-memory GraphStore recording every save.
type fakeStore struct {
	mu      sync.Mutex
	graphs  map[string]*graph.Graph
	saves   []string
	saveErr error
}

func newFakeStore(graphs ...*graph.Graph) *fakeStore {
	s := &fakeStore{graphs: map[string]*graph.Graph{}}
	for _, g := range graphs {
		s.graphs[g.ID] = g
	}
	return s
}

func (s *fakeStore) Load(_ context.Context, id string) (*graph.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.graphs[id]
	if !ok {
		return nil, &graph.GraphNotFoundError{GraphID: id}
	}
	return g, nil
}

func (s *fakeStore) Save(_ context.Context, g *graph.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves = append(s.saves, g.ID)
	return nil
}

func (s *fakeStore) savedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saves...)
}

// fakeGraphRunner scripts a single-graph run. The script writes events to
// out; the channel is closed when it returns.
type fakeGraphRunner struct {
	mu       sync.Mutex
	memory   string
	graphID  string
	launched bool
	script   func(ctx context.Context, ec *executor.Execution, out chan<- events.Event)
}

func (f *fakeGraphRunner) Execute(ctx context.Context, g *graph.Graph, ec *executor.Execution, canvasMemory string) <-chan events.Event {
	f.mu.Lock()
	f.memory = canvasMemory
	f.graphID = g.ID
	f.launched = true
	f.mu.Unlock()

	out := make(chan events.Event, 16)
	go func() {
		defer close(out)
		if f.script != nil {
			f.script(ctx, ec, out)
		}
	}()
	return out
}

func (f *fakeGraphRunner) seenMemory() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memory
}

func (f *fakeGraphRunner) wasLaunched() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launched
}

// fakeBatchRunner scripts a batch run and records the pool it received.
type fakeBatchRunner struct {
	mu     sync.Mutex
	pool   []schedule.SchedulableNode
	script func(ctx context.Context, bc *schedule.BatchContext, out chan<- events.Event)
}

func (f *fakeBatchRunner) Execute(ctx context.Context, bc *schedule.BatchContext, nodes []schedule.SchedulableNode) <-chan events.Event {
	f.mu.Lock()
	f.pool = append([]schedule.SchedulableNode(nil), nodes...)
	f.mu.Unlock()

	out := make(chan events.Event, 16)
	go func() {
		defer close(out)
		if f.script != nil {
			f.script(ctx, bc, out)
		}
	}()
	return out
}

func (f *fakeBatchRunner) seenPool() []schedule.SchedulableNode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schedule.SchedulableNode(nil), f.pool...)
}

// failMemory always fails resolution.
type failMemory struct{ err error }

func (m failMemory) Resolve(context.Context, *graph.Graph) (string, error) {
	return "", m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newGraph builds a one-node graph for registry tests.
func newGraph(t *testing.T, id, canvasMemory string) *graph.Graph {
	t.Helper()
	g := graph.New(id, id)
	g.CanvasMemory = canvasMemory
	g.AddNode(graph.NewNode(id+"-n", graph.NodeTypeGenerateText, "n", nil, graph.Position{}))
	return g
}

func collect(ch <-chan events.Event) []events.Event {
	var got []events.Event
	for ev := range ch {
		got = append(got, ev)
	}
	return got
}

func eventTypes(evs []events.Event) []events.Type {
	out := make([]events.Type, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}
