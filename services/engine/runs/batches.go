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
	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
	"github.com/themariolinml/Pixel-Groove/services/engine/schedule"
)

// BatchRunner executes a flattened node pool and streams its events.
// Implemented by schedule.Scheduler.
type BatchRunner interface {
	Execute(ctx context.Context, bc *schedule.BatchContext, nodes []schedule.SchedulableNode) <-chan events.Event
}

type activeBatch struct {
	batch *schedule.BatchContext
	queue *events.Queue
}

// SettleFunc observes a batch's final per-graph outcomes once it settles.
// The map reflects cancellation too: graphs that never ran stay pending.
type SettleFunc func(ctx context.Context, experimentID string, outcomes map[string]schedule.GraphOutcome)

// Batches starts, streams, and cancels multi-graph batch runs.
//
// Thread Safety: safe for concurrent use. OnSettled must be called before
// the first Start.
type Batches struct {
	scheduler BatchRunner
	store     GraphStore
	memory    Memory
	logger    *slog.Logger
	onSettled SettleFunc

	mu     sync.Mutex
	active map[string]*activeBatch
}

// NewBatches builds the batch operations layer. A nil memory uses
// StaticMemory with the default budget; a nil logger uses slog.Default().
func NewBatches(scheduler BatchRunner, store GraphStore, memory Memory, logger *slog.Logger) *Batches {
	if memory == nil {
		memory = NewStaticMemory(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batches{
		scheduler: scheduler,
		store:     store,
		memory:    memory,
		logger:    logger,
		active:    map[string]*activeBatch{},
	}
}

// OnSettled registers a callback invoked after each batch settles, with
// the batch's experiment ID and final per-graph outcomes. Used to push
// batch results back into the owning domain without coupling this package
// to it.
func (b *Batches) OnSettled(fn SettleFunc) {
	b.onSettled = fn
}

// Start loads every member graph, flattens them into one schedulable pool,
// registers the batch, and launches its driver in the background. A missing
// graph fails the whole start before anything runs.
func (b *Batches) Start(ctx context.Context, experimentID string, graphIDs []string, force bool) (string, error) {
	graphs := make(map[string]*graph.Graph, len(graphIDs))
	for _, gid := range graphIDs {
		g, err := b.store.Load(ctx, gid)
		if err != nil {
			return "", err
		}
		graphs[gid] = g
	}

	memories := make(map[string]string, len(graphs))
	for gid, g := range graphs {
		m, err := b.memory.Resolve(ctx, g)
		if err != nil {
			return "", err
		}
		memories[gid] = m
	}

	pool := schedule.FlattenGraphs(graphIDs, graphs, memories)
	batchID := uuid.New().String()
	bc := schedule.NewBatchContext(batchID, experimentID, graphIDs, force)
	queue := events.NewQueue(0)

	b.mu.Lock()
	b.active[batchID] = &activeBatch{batch: bc, queue: queue}
	b.mu.Unlock()

	b.logger.Info("batch started",
		"batch_id", batchID, "experiment_id", experimentID,
		"graphs", len(graphIDs), "pool_nodes", len(pool), "force", force)

	go b.drive(context.WithoutCancel(ctx), bc, pool, graphs, queue)
	return batchID, nil
}

// drive owns one batch: forward scheduler events into the queue, saving each
// member graph the moment it reaches a terminal outcome, then save every
// graph again once the batch settles so partial state survives a cancel.
func (b *Batches) drive(ctx context.Context, bc *schedule.BatchContext, pool []schedule.SchedulableNode, graphs map[string]*graph.Graph, queue *events.Queue) {
	defer queue.Close()
	defer func() {
		for _, gid := range bc.GraphIDs {
			g := graphs[gid]
			if g == nil {
				continue
			}
			if err := b.store.Save(ctx, g); err != nil {
				b.logger.Error("saving graph after batch failed",
					"batch_id", bc.BatchID, "graph_id", gid, "error", err)
			}
		}
	}()

	for ev := range b.scheduler.Execute(ctx, bc, pool) {
		queue.Push(ev)

		if ev.Type == events.TypeGraphCompleted || ev.Type == events.TypeGraphFailed {
			if g := graphs[ev.GraphID]; g != nil {
				if err := b.store.Save(ctx, g); err != nil {
					b.logger.Warn("saving graph at terminal outcome failed",
						"batch_id", bc.BatchID, "graph_id", ev.GraphID, "error", err)
				}
			}
		}
	}

	if b.onSettled != nil {
		b.onSettled(ctx, bc.ExperimentID, bc.Outcomes())
	}
}

// Stream subscribes to a batch's events with the same lifecycle as
// Executions.Stream: channel closes on drain (deregistering the batch) or
// when ctx dies (batch stays registered).
func (b *Batches) Stream(ctx context.Context, batchID string) (<-chan events.Event, error) {
	b.mu.Lock()
	run, ok := b.active[batchID]
	b.mu.Unlock()
	if !ok {
		return nil, &BatchNotFoundError{BatchID: batchID}
	}

	out := make(chan events.Event)
	go func() {
		defer close(out)
		for {
			select {
			case ev, open := <-run.queue.Events():
				if !open {
					b.remove(batchID)
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

// Cancel requests cooperative cancellation of the batch. In-flight nodes
// finish and are recorded; queued work is abandoned.
func (b *Batches) Cancel(batchID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	run, ok := b.active[batchID]
	if !ok {
		return false
	}
	run.batch.Cancel()
	return true
}

// Outcome reports the current per-graph outcome map of a running or
// completed batch, for callers that need batch results without consuming
// the stream.
func (b *Batches) Outcome(batchID string) (map[string]schedule.GraphOutcome, bool) {
	b.mu.Lock()
	run, ok := b.active[batchID]
	b.mu.Unlock()
	if !ok {
		return nil, false
	}
	return run.batch.Outcomes(), true
}

// ActiveCount reports how many batches are registered, including finished
// batches whose queues have not been drained yet.
func (b *Batches) ActiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

func (b *Batches) remove(batchID string) {
	b.mu.Lock()
	delete(b.active, batchID)
	b.mu.Unlock()
}
