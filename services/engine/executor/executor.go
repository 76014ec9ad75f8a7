// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package executor runs a single graph: nodes execute level by level in
// topological order, cached results are reused, and progress streams out
// as events.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/themariolinml/Pixel-Groove/services/engine/events"
	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
	"github.com/themariolinml/Pixel-Groove/services/engine/resolve"
	"github.com/themariolinml/Pixel-Groove/services/engine/telemetry"
)

var tracer = otel.Tracer("pixelgroove.executor")

// NodeExecutor turns one node into one media result.
type NodeExecutor interface {
	Execute(ctx context.Context, node *graph.Node, inputs resolve.Inputs, canvasMemory string) (*graph.MediaResult, error)
}

// InputResolver gathers a node's upstream artifacts into typed buckets.
type InputResolver interface {
	Resolve(ctx context.Context, g *graph.Graph, nodeID string, results map[string]*graph.MediaResult) (resolve.Inputs, error)
}

// Runner executes graphs one at a time. Nodes within a topological level
// run concurrently; a failure anywhere in a level ends the run after the
// level drains.
type Runner struct {
	exec     NodeExecutor
	resolver InputResolver
	recorder telemetry.Recorder
	logger   *slog.Logger
}

// New wires a runner. A nil recorder drops samples, a nil logger means
// slog.Default().
func New(exec NodeExecutor, resolver InputResolver, recorder telemetry.Recorder, logger *slog.Logger) *Runner {
	if recorder == nil {
		recorder = telemetry.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		exec:     exec,
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
	}
}

// Execute runs the graph toward the execution's output nodes and streams
// progress on the returned channel. The channel is buffered for the
// worst-case event count and closes after the terminal event: completed,
// failed, or cancelled. Every event is also recorded on ec.
func (r *Runner) Execute(ctx context.Context, g *graph.Graph, ec *Execution, canvasMemory string) <-chan events.Event {
	out := make(chan events.Event, 2*len(g.Nodes)+2)
	go r.run(ctx, g, ec, canvasMemory, out)
	return out
}

// nodeOutcome is one node's result from a level, processed in launch order
// once the level drains.
type nodeOutcome struct {
	nodeID   string
	result   *graph.MediaResult
	err      error
	duration time.Duration
}

func (r *Runner) run(ctx context.Context, g *graph.Graph, ec *Execution, canvasMemory string, out chan<- events.Event) {
	defer close(out)

	ctx, span := tracer.Start(ctx, "executor.Graph",
		trace.WithAttributes(
			attribute.String("execution.id", ec.ID),
			attribute.String("graph.id", ec.GraphID),
		),
	)
	defer span.End()

	emit := func(t events.Type, nodeID string, data map[string]any) {
		ev := events.Run(ec.ID, t, nodeID, data)
		ec.record(ev)
		out <- ev
	}

	ec.setStatus(StatusRunning)
	emit(events.TypeStarted, "", nil)

	required := graph.RequiredNodes(g, ec.OutputNodeIDs)
	var order []string
	for _, nid := range graph.TopologicalSort(g) {
		if required[nid] {
			order = append(order, nid)
		}
	}
	levels := graph.TopologicalLevels(g, order)

	outputs := map[string]*graph.MediaResult{}

	for _, level := range levels {
		if ec.Cancelled() || ctx.Err() != nil {
			ec.setStatus(StatusCancelled)
			emit(events.TypeCancelled, "", nil)
			span.SetStatus(codes.Error, "execution cancelled")
			return
		}

		// Serve cached results, collect the rest.
		var toRun []string
		for _, nodeID := range level {
			n := g.Node(nodeID)
			if n == nil {
				continue
			}
			if n.Reusable(ec.Force) {
				outputs[nodeID] = n.Result
				emit(events.TypeNodeSkipped, nodeID, map[string]any{"reason": "already completed"})
				r.recorder.Record(ctx, telemetry.Sample{
					GraphID:  ec.GraphID,
					NodeID:   nodeID,
					NodeType: n.Type,
					Status:   telemetry.StatusSkipped,
				})
				continue
			}
			toRun = append(toRun, nodeID)
		}
		if len(toRun) == 0 {
			continue
		}

		for _, nodeID := range toRun {
			n := g.Node(nodeID)
			n.Status = graph.NodeStatusRunning
			emit(events.TypeNodeStarted, nodeID, nil)
		}

		// outputs is read-only while workers run; results land in it only
		// after the level drains.
		outcomes := make([]nodeOutcome, len(toRun))
		var wg sync.WaitGroup
		for i, nodeID := range toRun {
			wg.Add(1)
			go func(i int, nodeID string, n *graph.Node) {
				defer wg.Done()
				nctx, nspan := tracer.Start(ctx, "executor.Node",
					trace.WithAttributes(
						attribute.String("node.id", nodeID),
						attribute.String("node.type", string(n.Type)),
					),
				)
				defer nspan.End()

				started := time.Now()
				inputs, err := r.resolver.Resolve(nctx, g, nodeID, outputs)
				var result *graph.MediaResult
				if err == nil {
					result, err = r.exec.Execute(nctx, n, inputs, canvasMemory)
				}
				if err != nil {
					nspan.RecordError(err)
					nspan.SetStatus(codes.Error, err.Error())
				} else {
					nspan.SetStatus(codes.Ok, "")
				}
				outcomes[i] = nodeOutcome{
					nodeID:   nodeID,
					result:   result,
					err:      err,
					duration: time.Since(started),
				}
			}(i, nodeID, g.Node(nodeID))
		}
		wg.Wait()

		hasFailure := false
		for _, oc := range outcomes {
			n := g.Node(oc.nodeID)
			if oc.err != nil {
				r.logger.Error("node failed",
					"execution_id", ec.ID,
					"node_id", oc.nodeID,
					"node_type", n.Type,
					"error", oc.err,
				)
				n.Status = graph.NodeStatusFailed
				n.ErrorMessage = oc.err.Error()
				emit(events.TypeNodeFailed, oc.nodeID, map[string]any{"error": oc.err.Error()})
				hasFailure = true

				r.recorder.Record(ctx, telemetry.Sample{
					GraphID:  ec.GraphID,
					NodeID:   oc.nodeID,
					NodeType: n.Type,
					Status:   telemetry.StatusFailed,
					Duration: oc.duration,
				})
				continue
			}

			n.AddGeneration(oc.result)
			outputs[oc.nodeID] = oc.result
			emit(events.TypeNodeCompleted, oc.nodeID, map[string]any{
				"media_type": string(oc.result.MediaType),
				"urls": map[string]any{
					"original":  oc.result.URLs.Original,
					"thumbnail": oc.result.URLs.Thumbnail,
				},
			})

			r.recorder.Record(ctx, telemetry.Sample{
				GraphID:  ec.GraphID,
				NodeID:   oc.nodeID,
				NodeType: n.Type,
				Status:   telemetry.StatusCompleted,
				Duration: oc.duration,
			})
		}

		if hasFailure {
			ec.setStatus(StatusFailed)
			emit(events.TypeFailed, "", map[string]any{"error": "One or more nodes failed"})
			span.SetStatus(codes.Error, "one or more nodes failed")
			return
		}
	}

	ec.setStatus(StatusCompleted)
	emit(events.TypeCompleted, "", nil)
	span.SetStatus(codes.Ok, "")
}
