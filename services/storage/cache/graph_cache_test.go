// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// countingRepo is an in-memory Repository that counts Load calls and can
// hold the first load open on a gate.
type countingRepo struct {
	mu     sync.Mutex
	graphs map[string]*graph.Graph
	loads  atomic.Int32

	gate    chan struct{} // when set, Load blocks until the gate closes
	entered chan struct{}
}

func newCountingRepo() *countingRepo {
	return &countingRepo{graphs: map[string]*graph.Graph{}}
}

func (r *countingRepo) Save(ctx context.Context, g *graph.Graph) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphs[g.ID] = g
	return nil
}

func (r *countingRepo) Load(ctx context.Context, id string) (*graph.Graph, error) {
	if r.loads.Add(1) == 1 && r.gate != nil {
		close(r.entered)
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.graphs[id]
	if !ok {
		return nil, &graph.GraphNotFoundError{GraphID: id}
	}
	return g, nil
}

func (r *countingRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.graphs, id)
	return nil
}

func (r *countingRepo) List(ctx context.Context) ([]*graph.Graph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*graph.Graph, 0, len(r.graphs))
	for _, g := range r.graphs {
		out = append(out, g)
	}
	return out, nil
}

// TestLoad_SecondReadHitsCache verifies a repeated load does not touch the
// repository again.
func TestLoad_SecondReadHitsCache(t *testing.T) {
	repo := newCountingRepo()
	require.NoError(t, repo.Save(context.Background(), graph.New("g1", "demo")))
	c := NewGraphCache(repo)
	ctx := context.Background()

	first, err := c.Load(ctx, "g1")
	require.NoError(t, err)
	second, err := c.Load(ctx, "g1")
	require.NoError(t, err)

	assert.Equal(t, int32(1), repo.loads.Load())
	assert.Equal(t, "demo", second.Name)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)

	// Callers own their copy: mutating one must not leak into the next.
	first.Name = "scribbled"
	third, err := c.Load(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "demo", third.Name)
}

// TestLoad_ConcurrentMissesShareOneRead verifies singleflight collapses
// simultaneous loads of one graph into a single repository read.
func TestLoad_ConcurrentMissesShareOneRead(t *testing.T) {
	repo := newCountingRepo()
	repo.gate = make(chan struct{})
	repo.entered = make(chan struct{})
	require.NoError(t, repo.Save(context.Background(), graph.New("g1", "demo")))
	c := NewGraphCache(repo)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Load(context.Background(), "g1")
		}(i)
	}

	<-repo.entered
	// Give the remaining callers time to join the in-flight load.
	time.Sleep(20 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), repo.loads.Load())
}

// TestSave_InvalidatesEntry verifies mutations write through and the next
// load observes them.
func TestSave_InvalidatesEntry(t *testing.T) {
	repo := newCountingRepo()
	c := NewGraphCache(repo)
	ctx := context.Background()

	g := graph.New("g1", "before")
	require.NoError(t, c.Save(ctx, g))

	got, err := c.Load(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "before", got.Name)

	got.Name = "after"
	require.NoError(t, c.Save(ctx, got))

	got, err = c.Load(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
	assert.Equal(t, int32(2), repo.loads.Load(), "save must drop the cached entry")
}

// TestDelete_InvalidatesEntry verifies a delete removes both the record
// and the cached copy.
func TestDelete_InvalidatesEntry(t *testing.T) {
	repo := newCountingRepo()
	c := NewGraphCache(repo)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, graph.New("g1", "doomed")))
	_, err := c.Load(ctx, "g1")
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "g1"))

	_, err = c.Load(ctx, "g1")
	var notFound *graph.GraphNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

// TestLoad_ErrorsAreNotCached verifies a failed load does not poison
// later loads once the graph exists.
func TestLoad_ErrorsAreNotCached(t *testing.T) {
	repo := newCountingRepo()
	c := NewGraphCache(repo)
	ctx := context.Background()

	_, err := c.Load(ctx, "g1")
	require.Error(t, err)

	require.NoError(t, repo.Save(ctx, graph.New("g1", "late arrival")))

	got, err := c.Load(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "late arrival", got.Name)
}
