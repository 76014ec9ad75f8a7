// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/themariolinml/Pixel-Groove/services/engine/events"
	"github.com/themariolinml/Pixel-Groove/services/engine/executor"
	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// GraphRunner drives one graph level by level and streams its events.
// Implemented by executor.Runner.
type GraphRunner interface {
	Execute(ctx context.Context, g *graph.Graph, ec *executor.Execution, canvasMemory string) <-chan events.Event
}

type activeRun struct {
	exec  *executor.Execution
	queue *events.Queue
}

// Executions starts, streams, and cancels single-graph runs.
//
// Thread Safety: safe for concurrent use.
type Executions struct {
	runner GraphRunner
	store  GraphStore
	memory Memory
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*activeRun
}

// NewExecutions builds the single-graph operations layer. A nil memory uses
// StaticMemory with the default budget; a nil logger uses slog.Default().
func NewExecutions(runner GraphRunner, store GraphStore, memory Memory, logger *slog.Logger) *Executions {
	if memory == nil {
		memory = NewStaticMemory(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executions{
		runner: runner,
		store:  store,
		memory: memory,
		logger: logger,
		active: map[string]*activeRun{},
	}
}

// Start loads the graph, registers a new run, and launches its driver in the
// background. It returns the execution ID to stream or cancel by. The run
// outlives the caller's context.
func (e *Executions) Start(ctx context.Context, graphID string, outputNodeIDs []string, force bool) (string, error) {
	g, err := e.store.Load(ctx, graphID)
	if err != nil {
		return "", err
	}

	executionID := uuid.New().String()
	ec := executor.NewExecution(executionID, graphID, outputNodeIDs, force)
	queue := events.NewQueue(0)

	e.mu.Lock()
	e.active[executionID] = &activeRun{exec: ec, queue: queue}
	e.mu.Unlock()

	e.logger.Info("execution started",
		"execution_id", executionID, "graph_id", graphID,
		"output_nodes", len(outputNodeIDs), "force", force)

	go e.drive(context.WithoutCancel(ctx), g, ec, queue)
	return executionID, nil
}

// drive owns one run: resolve canvas memory, forward engine events into the
// queue, save the graph once the stream ends, close the queue. The graph is
// saved on every terminal state; nodes hold their new results and statuses.
func (e *Executions) drive(ctx context.Context, g *graph.Graph, ec *executor.Execution, queue *events.Queue) {
	defer queue.Close()

	canvasMemory, err := e.memory.Resolve(ctx, g)
	if err != nil {
		e.logger.Error("canvas memory resolution failed",
			"execution_id", ec.ID, "graph_id", g.ID, "error", err)
		queue.Push(events.Run(ec.ID, events.TypeFailed, "", map[string]any{"error": err.Error()}))
		return
	}

	for ev := range e.runner.Execute(ctx, g, ec, canvasMemory) {
		queue.Push(ev)
	}

	if err := e.store.Save(ctx, g); err != nil {
		e.logger.Error("saving graph after run failed",
			"execution_id", ec.ID, "graph_id", g.ID, "error", err)
	}
}

// Stream subscribes to a run's events. The returned channel closes when the
// run ends and its queue is drained, at which point the run leaves the
// registry; it also closes when ctx dies, leaving the run registered so a
// later subscriber can pick up the remaining events.
func (e *Executions) Stream(ctx context.Context, executionID string) (<-chan events.Event, error) {
	e.mu.Lock()
	run, ok := e.active[executionID]
	e.mu.Unlock()
	if !ok {
		return nil, &ExecutionNotFoundError{ExecutionID: executionID}
	}

	out := make(chan events.Event)
	go func() {
		defer close(out)
		for {
			select {
			case ev, open := <-run.queue.Events():
				if !open {
					e.remove(executionID)
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Cancel requests cooperative cancellation. It reports whether the execution
// was found; the run still finishes its in-flight level and terminates
// through the event stream.
func (e *Executions) Cancel(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.active[executionID]
	if !ok {
		return false
	}
	run.exec.Cancel()
	return true
}

// ActiveCount reports how many runs are registered, including finished runs
// whose queues have not been drained yet.
func (e *Executions) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *Executions) remove(executionID string) {
	e.mu.Lock()
	delete(e.active, executionID)
	e.mu.Unlock()
}
