// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themariolinml/Pixel-Groove/services/engine/events"
	"github.com/themariolinml/Pixel-Groove/services/engine/executor"
	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// TestExecutions_RunLifecycle verifies the start -> stream -> drain cycle:
// events arrive in order, the graph is saved before the stream closes, and
// the drained run leaves the registry.
func TestExecutions_RunLifecycle(t *testing.T) {
	store := newFakeStore(newGraph(t, "g1", ""))
	runner := &fakeGraphRunner{script: func(_ context.Context, ec *executor.Execution, out chan<- events.Event) {
		out <- events.Run(ec.ID, events.TypeStarted, "", nil)
		out <- events.Run(ec.ID, events.TypeNodeCompleted, "g1-n", nil)
		out <- events.Run(ec.ID, events.TypeCompleted, "", nil)
	}}
	ex := NewExecutions(runner, store, nil, testLogger())

	id, err := ex.Start(context.Background(), "g1", []string{"g1-n"}, false)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ch, err := ex.Stream(context.Background(), id)
	require.NoError(t, err)
	got := collect(ch)

	assert.Equal(t, []events.Type{
		events.TypeStarted, events.TypeNodeCompleted, events.TypeCompleted,
	}, eventTypes(got))
	for _, ev := range got {
		assert.Equal(t, id, ev.ExecutionID)
	}
	assert.Equal(t, []string{"g1"}, store.savedIDs(), "graph saved once on termination")

	_, err = ex.Stream(context.Background(), id)
	var nf *ExecutionNotFoundError
	require.ErrorAs(t, err, &nf, "drained run leaves the registry")
	assert.Equal(t, id, nf.ExecutionID)
}

// TestExecutions_StartUnknownGraph verifies starting against a missing graph
// fails before anything is registered.
func TestExecutions_StartUnknownGraph(t *testing.T) {
	ex := NewExecutions(&fakeGraphRunner{}, newFakeStore(), nil, testLogger())

	_, err := ex.Start(context.Background(), "ghost", nil, false)

	var nf *graph.GraphNotFoundError
	require.ErrorAs(t, err, &nf)
}

// TestExecutions_StreamUnknownID verifies the not-found error carries the
// requested ID.
func TestExecutions_StreamUnknownID(t *testing.T) {
	ex := NewExecutions(&fakeGraphRunner{}, newFakeStore(), nil, testLogger())

	_, err := ex.Stream(context.Background(), "nope")

	require.EqualError(t, err, "execution nope not found")
}

// TestExecutions_CancelReachesRun verifies Cancel flips the run's flag and
// the stream terminates with the cancelled event.
func TestExecutions_CancelReachesRun(t *testing.T) {
	proceed := make(chan struct{})
	runner := &fakeGraphRunner{script: func(_ context.Context, ec *executor.Execution, out chan<- events.Event) {
		out <- events.Run(ec.ID, events.TypeStarted, "", nil)
		<-proceed
		if ec.Cancelled() {
			out <- events.Run(ec.ID, events.TypeCancelled, "", nil)
		} else {
			out <- events.Run(ec.ID, events.TypeCompleted, "", nil)
		}
	}}
	store := newFakeStore(newGraph(t, "g1", ""))
	ex := NewExecutions(runner, store, nil, testLogger())

	id, err := ex.Start(context.Background(), "g1", nil, false)
	require.NoError(t, err)
	ch, err := ex.Stream(context.Background(), id)
	require.NoError(t, err)

	first := <-ch
	require.Equal(t, events.TypeStarted, first.Type)

	assert.True(t, ex.Cancel(id))
	assert.False(t, ex.Cancel("ghost"))
	close(proceed)

	rest := collect(ch)
	require.Len(t, rest, 1)
	assert.Equal(t, events.TypeCancelled, rest[0].Type)
}

// TestExecutions_MemoryFailureFailsRun verifies a canvas memory error turns
// into a single failed event and skips the save.
func TestExecutions_MemoryFailureFailsRun(t *testing.T) {
	store := newFakeStore(newGraph(t, "g1", ""))
	runner := &fakeGraphRunner{}
	mem := failMemory{err: errors.New("memory backend down")}
	ex := NewExecutions(runner, store, mem, testLogger())

	id, err := ex.Start(context.Background(), "g1", nil, false)
	require.NoError(t, err)
	ch, err := ex.Stream(context.Background(), id)
	require.NoError(t, err)
	got := collect(ch)

	require.Len(t, got, 1)
	assert.Equal(t, events.TypeFailed, got[0].Type)
	assert.Equal(t, "memory backend down", got[0].Data["error"])
	assert.False(t, runner.wasLaunched(), "runner must not start without memory")
	assert.Empty(t, store.savedIDs())
}

// TestExecutions_CanvasMemoryPassedToRunner verifies the stored canvas
// memory reaches the runner resolved and trimmed.
func TestExecutions_CanvasMemoryPassedToRunner(t *testing.T) {
	store := newFakeStore(newGraph(t, "g1", "  brand voice notes\n"))
	runner := &fakeGraphRunner{script: func(_ context.Context, ec *executor.Execution, out chan<- events.Event) {
		out <- events.Run(ec.ID, events.TypeCompleted, "", nil)
	}}
	ex := NewExecutions(runner, store, nil, testLogger())

	id, err := ex.Start(context.Background(), "g1", nil, false)
	require.NoError(t, err)
	ch, err := ex.Stream(context.Background(), id)
	require.NoError(t, err)
	collect(ch)

	assert.Equal(t, "brand voice notes", runner.seenMemory())
}

// TestExecutions_LateSubscriberSeesBufferedEvents verifies a run that ends
// before anyone streams keeps its events until a consumer drains them.
func TestExecutions_LateSubscriberSeesBufferedEvents(t *testing.T) {
	store := newFakeStore(newGraph(t, "g1", ""))
	runner := &fakeGraphRunner{script: func(_ context.Context, ec *executor.Execution, out chan<- events.Event) {
		out <- events.Run(ec.ID, events.TypeStarted, "", nil)
		out <- events.Run(ec.ID, events.TypeCompleted, "", nil)
	}}
	ex := NewExecutions(runner, store, nil, testLogger())

	id, err := ex.Start(context.Background(), "g1", nil, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(store.savedIDs()) == 1
	}, 2*time.Second, 5*time.Millisecond, "driver finished")

	ch, err := ex.Stream(context.Background(), id)
	require.NoError(t, err)
	got := collect(ch)

	assert.Equal(t, []events.Type{events.TypeStarted, events.TypeCompleted}, eventTypes(got))
}

// TestExecutions_SubscriberDetachKeepsRun verifies a dead subscriber context
// closes its stream but leaves the run registered for the next subscriber.
func TestExecutions_SubscriberDetachKeepsRun(t *testing.T) {
	gate := make(chan struct{})
	runner := &fakeGraphRunner{script: func(_ context.Context, ec *executor.Execution, out chan<- events.Event) {
		out <- events.Run(ec.ID, events.TypeStarted, "", nil)
		<-gate
		out <- events.Run(ec.ID, events.TypeCompleted, "", nil)
	}}
	store := newFakeStore(newGraph(t, "g1", ""))
	ex := NewExecutions(runner, store, nil, testLogger())

	id, err := ex.Start(context.Background(), "g1", nil, false)
	require.NoError(t, err)

	ctx1, cancel1 := context.WithCancel(context.Background())
	ch1, err := ex.Stream(ctx1, id)
	require.NoError(t, err)
	first := <-ch1
	require.Equal(t, events.TypeStarted, first.Type)

	cancel1()
	collect(ch1)

	ch2, err := ex.Stream(context.Background(), id)
	require.NoError(t, err, "run stays registered after a detached subscriber")
	close(gate)
	got := collect(ch2)

	require.Len(t, got, 1)
	assert.Equal(t, events.TypeCompleted, got[0].Type)
}

// TestExecutions_SaveErrorStillEndsStream verifies a failed save is logged,
// not surfaced: the stream still terminates and the run is drained normally.
func TestExecutions_SaveErrorStillEndsStream(t *testing.T) {
	store := newFakeStore(newGraph(t, "g1", ""))
	store.saveErr = errors.New("disk full")
	runner := &fakeGraphRunner{script: func(_ context.Context, ec *executor.Execution, out chan<- events.Event) {
		out <- events.Run(ec.ID, events.TypeCompleted, "", nil)
	}}
	ex := NewExecutions(runner, store, nil, testLogger())

	id, err := ex.Start(context.Background(), "g1", nil, false)
	require.NoError(t, err)
	ch, err := ex.Stream(context.Background(), id)
	require.NoError(t, err)
	got := collect(ch)

	assert.Equal(t, []events.Type{events.TypeCompleted}, eventTypes(got))
}
