// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package schedule executes batch pools: nodes from many graphs flattened
// into one dependency-aware dispatch loop with per-type concurrency caps
// and per-graph failure isolation.
package schedule

import (
	"context"
	"log/slog"
	"maps"
	"sort"
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

var tracer = otel.Tracer("pixelgroove.schedule")

// NodeRunner executes one node and returns its media result.
type NodeRunner interface {
	Execute(ctx context.Context, node *graph.Node, inputs resolve.Inputs, canvasMemory string) (*graph.MediaResult, error)
}

// InputResolver gathers a node's upstream artifacts into typed buckets.
type InputResolver interface {
	Resolve(ctx context.Context, g *graph.Graph, nodeID string, results map[string]*graph.MediaResult) (resolve.Inputs, error)
}

// Scheduler dispatches batch pools. Each node waits for its dependencies,
// then for a semaphore slot of its type, then executes. A node failure
// poisons the rest of its graph; other graphs keep running.
type Scheduler struct {
	runner   NodeRunner
	resolver InputResolver
	table    *Table
	recorder telemetry.Recorder
	logger   *slog.Logger
}

// New wires a scheduler. A nil table means the built-in type configs, a
// nil recorder drops samples, a nil logger means slog.Default().
func New(runner NodeRunner, resolver InputResolver, table *Table, recorder telemetry.Recorder, logger *slog.Logger) *Scheduler {
	if table == nil {
		table = NewTable(nil)
	}
	if recorder == nil {
		recorder = telemetry.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:   runner,
		resolver: resolver,
		table:    table,
		recorder: recorder,
		logger:   logger,
	}
}

// Execute runs the pool and streams progress on the returned channel.
//
// The channel is buffered for the worst-case event count, so workers never
// block on a slow subscriber. It closes after the terminal event:
// batch_completed, or batch_cancelled when a stop was requested. The
// concurrency table is snapshotted at the start; later config reloads
// apply to the next batch.
func (s *Scheduler) Execute(ctx context.Context, bc *BatchContext, nodes []SchedulableNode) <-chan events.Event {
	out := make(chan events.Event, 2*len(nodes)+len(bc.GraphIDs)+2)
	go s.run(ctx, bc, nodes, out)
	return out
}

func (s *Scheduler) run(ctx context.Context, bc *BatchContext, nodes []SchedulableNode, out chan<- events.Event) {
	ctx, span := tracer.Start(ctx, "schedule.Batch",
		trace.WithAttributes(
			attribute.String("batch.id", bc.BatchID),
			attribute.Int("batch.graphs", len(bc.GraphIDs)),
			attribute.Int("batch.nodes", len(nodes)),
		),
	)
	defer span.End()

	if len(nodes) == 0 {
		bc.setStatus(BatchCompleted)
		out <- events.Batch(bc.BatchID, events.TypeBatchStarted, "", "", map[string]any{
			"graph_ids":   bc.GraphIDs,
			"total_nodes": 0,
		})
		out <- events.Batch(bc.BatchID, events.TypeBatchCompleted, "", "", map[string]any{
			"graph_outcomes": map[string]any{},
		})
		close(out)
		span.SetStatus(codes.Ok, "")
		return
	}

	bc.setStatus(BatchRunning)
	out <- events.Batch(bc.BatchID, events.TypeBatchStarted, "", "", map[string]any{
		"graph_ids":   bc.GraphIDs,
		"total_nodes": len(nodes),
	})

	st := newBatchState(nodes, s.table.Snapshot())

	// Cached results stand in for execution before anything dispatches.
	for i := range nodes {
		sn := &nodes[i]
		if sn.Node.Reusable(bc.Force) {
			st.markSkipped(sn)
			out <- events.Batch(bc.BatchID, events.TypeNodeSkipped, sn.GraphID, sn.NodeID, map[string]any{
				"reason": "already completed",
			})
			s.recorder.Record(ctx, telemetry.Sample{
				GraphID:  sn.GraphID,
				NodeID:   sn.NodeID,
				NodeType: sn.Type,
				Status:   telemetry.StatusSkipped,
			})
		}
	}

	// Graphs with nothing left to run are complete right away. This also
	// covers member graphs that contributed zero nodes to the pool.
	for _, gid := range bc.GraphIDs {
		if st.isGraphComplete(gid) {
			bc.setOutcome(gid, OutcomeCompleted)
			out <- events.Batch(bc.BatchID, events.TypeGraphCompleted, gid, "", nil)
		}
	}

	if st.allDone() {
		bc.setStatus(BatchCompleted)
		out <- events.Batch(bc.BatchID, events.TypeBatchCompleted, "", "", map[string]any{
			"graph_outcomes": bc.outcomeData(),
		})
		close(out)
		span.SetStatus(codes.Ok, "")
		return
	}

	for _, sn := range st.readyNodes() {
		st.markLaunched(sn.NodeID)
		go s.runNode(ctx, sn, st, bc, out)
	}

	// Workers close done once every node has been accounted for; all of
	// their sends happen before their accounting, so closing out here
	// cannot race a send.
	<-st.done

	if bc.Cancelled() {
		bc.setStatus(BatchCancelled)
		out <- events.Batch(bc.BatchID, events.TypeBatchCancelled, "", "", nil)
		span.SetStatus(codes.Error, "batch cancelled")
	} else {
		bc.setStatus(BatchCompleted)
		out <- events.Batch(bc.BatchID, events.TypeBatchCompleted, "", "", map[string]any{
			"graph_outcomes": bc.outcomeData(),
		})
		span.SetStatus(codes.Ok, "")
	}
	close(out)
}

// runNode drives one node: wait for a slot, execute, promote children.
// Every worker retires exactly one accounting slot on the way out.
func (s *Scheduler) runNode(ctx context.Context, sn *SchedulableNode, st *batchState, bc *BatchContext, out chan<- events.Event) {
	defer st.finishOne()

	// A dead context stops the batch the same way a cancel request does.
	// The explicit check catches contexts that died before dispatch, where
	// Acquire could otherwise still succeed on a free slot.
	if ctx.Err() != nil {
		bc.Cancel()
		st.drainUnlaunched()
		return
	}

	dispatched := time.Now()
	sem := st.semaphore(sn.Type)
	if err := sem.Acquire(ctx); err != nil {
		bc.Cancel()
		st.drainUnlaunched()
		return
	}
	defer sem.Release()

	if bc.Cancelled() {
		st.drainUnlaunched()
		return
	}
	if st.isGraphFailed(sn.GraphID) {
		return
	}
	queueWait := time.Since(dispatched)

	nctx, span := tracer.Start(ctx, "schedule.Node",
		trace.WithAttributes(
			attribute.String("node.id", sn.NodeID),
			attribute.String("node.type", string(sn.Type)),
			attribute.String("graph.id", sn.GraphID),
		),
	)
	defer span.End()

	sn.Node.Status = graph.NodeStatusRunning
	out <- events.Batch(bc.BatchID, events.TypeNodeStarted, sn.GraphID, sn.NodeID, nil)

	started := time.Now()
	inputs, err := s.resolver.Resolve(nctx, sn.Graph, sn.NodeID, st.resultsSnapshot())
	var result *graph.MediaResult
	if err == nil {
		result, err = s.runner.Execute(nctx, sn.Node, inputs, sn.CanvasMemory)
	}
	duration := time.Since(started)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("node failed",
			"batch_id", bc.BatchID,
			"graph_id", sn.GraphID,
			"node_id", sn.NodeID,
			"node_type", sn.Type,
			"error", err,
		)

		sn.Node.Status = graph.NodeStatusFailed
		sn.Node.ErrorMessage = err.Error()

		first := st.failGraph(sn)
		bc.setOutcome(sn.GraphID, OutcomeFailed)

		out <- events.Batch(bc.BatchID, events.TypeNodeFailed, sn.GraphID, sn.NodeID, map[string]any{
			"error": err.Error(),
		})
		if first {
			out <- events.Batch(bc.BatchID, events.TypeGraphFailed, sn.GraphID, "", map[string]any{
				"error": err.Error(),
			})
		}

		s.recorder.Record(nctx, telemetry.Sample{
			GraphID:   sn.GraphID,
			NodeID:    sn.NodeID,
			NodeType:  sn.Type,
			Status:    telemetry.StatusFailed,
			Duration:  duration,
			QueueWait: queueWait,
		})
		return
	}

	sn.Node.AddGeneration(result)
	graphComplete := st.completeNode(sn, result)

	span.SetStatus(codes.Ok, "")
	out <- events.Batch(bc.BatchID, events.TypeNodeCompleted, sn.GraphID, sn.NodeID, map[string]any{
		"media_type": string(result.MediaType),
		"urls": map[string]any{
			"original":  result.URLs.Original,
			"thumbnail": result.URLs.Thumbnail,
		},
	})

	if graphComplete {
		bc.setOutcome(sn.GraphID, OutcomeCompleted)
		out <- events.Batch(bc.BatchID, events.TypeGraphCompleted, sn.GraphID, "", nil)
	}

	for _, child := range st.promoteChildren(sn.NodeID) {
		go s.runNode(ctx, child, st, bc, out)
	}

	s.recorder.Record(nctx, telemetry.Sample{
		GraphID:   sn.GraphID,
		NodeID:    sn.NodeID,
		NodeType:  sn.Type,
		Status:    telemetry.StatusCompleted,
		Duration:  duration,
		QueueWait: queueWait,
	})
}

// batchState is the shared accounting for one batch. Every mutation runs
// under mu; workers are goroutines, so unlike a single-threaded event
// loop nothing here is atomic for free.
//
// Each node retires exactly one accounting slot: in the skip pre-pass, in
// its worker's deferred finishOne, or in a sweep that retires nodes which
// will never be dispatched. Sweeps always run from a worker that has not
// yet retired its own slot, so remaining stays above zero until the last
// worker is done.
type batchState struct {
	mu sync.Mutex

	nodes       map[string]*SchedulableNode
	order       []string
	pendingDeps map[string]int
	children    map[string][]string

	graphTotal map[string]int
	graphDone  map[string]int

	results      map[string]*graph.MediaResult
	finished     map[string]bool
	launched     map[string]bool
	failedGraphs map[string]bool

	remaining int
	done      chan struct{}

	// Immutable after construction.
	sems       map[graph.NodeType]*Semaphore
	priorities map[graph.NodeType]int
	defaultSem *Semaphore
}

func newBatchState(nodes []SchedulableNode, configs map[graph.NodeType]NodeTypeConfig) *batchState {
	st := &batchState{
		nodes:        make(map[string]*SchedulableNode, len(nodes)),
		order:        make([]string, 0, len(nodes)),
		pendingDeps:  make(map[string]int, len(nodes)),
		children:     make(map[string][]string),
		graphTotal:   make(map[string]int),
		graphDone:    make(map[string]int),
		results:      make(map[string]*graph.MediaResult, len(nodes)),
		finished:     make(map[string]bool, len(nodes)),
		launched:     make(map[string]bool, len(nodes)),
		failedGraphs: make(map[string]bool),
		remaining:    len(nodes),
		done:         make(chan struct{}),
		sems:         make(map[graph.NodeType]*Semaphore, len(configs)),
		priorities:   make(map[graph.NodeType]int, len(configs)),
	}
	for i := range nodes {
		sn := &nodes[i]
		st.nodes[sn.NodeID] = sn
		st.order = append(st.order, sn.NodeID)
	}
	for i := range nodes {
		sn := &nodes[i]
		seen := make(map[string]bool, len(sn.Dependencies))
		for _, dep := range sn.Dependencies {
			if _, inPool := st.nodes[dep]; !inPool || dep == sn.NodeID || seen[dep] {
				continue
			}
			seen[dep] = true
			st.pendingDeps[sn.NodeID]++
			st.children[dep] = append(st.children[dep], sn.NodeID)
		}
		st.graphTotal[sn.GraphID]++
	}
	for nt, cfg := range configs {
		st.sems[nt] = NewSemaphore(cfg.MaxConcurrency)
		st.priorities[nt] = cfg.Priority
	}
	st.defaultSem = NewSemaphore(DefaultConcurrency)
	return st
}

func (st *batchState) semaphore(nt graph.NodeType) *Semaphore {
	if sem, ok := st.sems[nt]; ok {
		return sem
	}
	return st.defaultSem
}

func (st *batchState) priority(nt graph.NodeType) int {
	return st.priorities[nt]
}

// markSkipped retires a node whose cached result stands in for execution.
// Children see the dependency as satisfied immediately.
func (st *batchState) markSkipped(sn *SchedulableNode) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.results[sn.NodeID] = sn.Node.Result
	st.finished[sn.NodeID] = true
	st.launched[sn.NodeID] = true
	st.graphDone[sn.GraphID]++
	st.remaining--
	for _, childID := range st.children[sn.NodeID] {
		st.pendingDeps[childID]--
	}
}

func (st *batchState) markLaunched(nodeID string) {
	st.mu.Lock()
	st.launched[nodeID] = true
	st.mu.Unlock()
}

// completeNode stores the result and reports whether this completion
// finished the node's graph. The check shares the lock with the counter
// increment, so exactly one completer observes the transition.
func (st *batchState) completeNode(sn *SchedulableNode, result *graph.MediaResult) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.results[sn.NodeID] = result
	st.finished[sn.NodeID] = true
	st.graphDone[sn.GraphID]++
	return !st.failedGraphs[sn.GraphID] &&
		st.graphDone[sn.GraphID] >= st.graphTotal[sn.GraphID]
}

// failGraph records a node failure and retires every node of its graph
// that was never dispatched, so none of them can run and each still
// releases its accounting slot. Siblings already dispatched finish on
// their own and retire themselves. Returns true on the graph's first
// failure so graph_failed is emitted once.
func (st *batchState) failGraph(sn *SchedulableNode) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.finished[sn.NodeID] = true
	first := !st.failedGraphs[sn.GraphID]
	st.failedGraphs[sn.GraphID] = true

	for _, id := range st.order {
		other := st.nodes[id]
		if other.GraphID != sn.GraphID || st.finished[id] || st.launched[id] {
			continue
		}
		st.finished[id] = true
		st.launched[id] = true
		st.graphDone[sn.GraphID]++
		st.remaining--
	}
	return first
}

// drainUnlaunched retires every node that was never dispatched so the
// remaining counter still reaches zero after a cancellation. Later calls
// find nothing left to retire.
func (st *batchState) drainUnlaunched() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, id := range st.order {
		if st.launched[id] || st.finished[id] {
			continue
		}
		st.finished[id] = true
		st.launched[id] = true
		st.remaining--
	}
}

// finishOne retires one accounting slot. The goroutine that retires the
// last slot closes done.
func (st *batchState) finishOne() {
	st.mu.Lock()
	st.remaining--
	last := st.remaining == 0
	st.mu.Unlock()
	if last {
		close(st.done)
	}
}

func (st *batchState) allDone() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.remaining == 0
}

func (st *batchState) isGraphComplete(graphID string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.graphDone[graphID] >= st.graphTotal[graphID]
}

func (st *batchState) isGraphFailed(graphID string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.failedGraphs[graphID]
}

// readyNodes returns the dispatchable pool: zero pending dependencies,
// never launched, graph not failed. Higher priority types come first;
// equal priorities keep pool order.
func (st *batchState) readyNodes() []*SchedulableNode {
	st.mu.Lock()
	defer st.mu.Unlock()
	var ready []*SchedulableNode
	for _, id := range st.order {
		if st.pendingDeps[id] > 0 || st.launched[id] || st.finished[id] {
			continue
		}
		if st.failedGraphs[st.nodes[id].GraphID] {
			continue
		}
		ready = append(ready, st.nodes[id])
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return st.priority(ready[i].Type) > st.priority(ready[j].Type)
	})
	return ready
}

// promoteChildren decrements the children's dependency counts after a
// parent finishes and returns the ones that just became dispatchable,
// already marked launched. Priority order matches readyNodes; it is
// advisory, since the semaphores arbitrate actual slots.
func (st *batchState) promoteChildren(parentID string) []*SchedulableNode {
	st.mu.Lock()
	defer st.mu.Unlock()
	var ready []*SchedulableNode
	for _, childID := range st.children[parentID] {
		st.pendingDeps[childID]--
		if st.pendingDeps[childID] > 0 || st.launched[childID] || st.finished[childID] {
			continue
		}
		if st.failedGraphs[st.nodes[childID].GraphID] {
			continue
		}
		st.launched[childID] = true
		ready = append(ready, st.nodes[childID])
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return st.priority(ready[i].Type) > st.priority(ready[j].Type)
	})
	return ready
}

// resultsSnapshot copies the shared result map for one input resolution.
// A node's dependencies all finish before it dispatches, so the copy has
// everything the node needs.
func (st *batchState) resultsSnapshot() map[string]*graph.MediaResult {
	st.mu.Lock()
	defer st.mu.Unlock()
	return maps.Clone(st.results)
}
