// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache puts a read-through cache in front of the graph
// repository. Concurrent executions of the same graph share a single
// repository load via singleflight; every caller still receives its own
// copy, because runs mutate node state on the graph they hold.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// Repository is the persistence layer the cache reads through to.
type Repository interface {
	Save(ctx context.Context, g *graph.Graph) error
	Load(ctx context.Context, id string) (*graph.Graph, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*graph.Graph, error)
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// GraphCache caches the serialized form of loaded graphs. Entries are
// stored as JSON bytes so each Load hands out a fresh object; mutation
// paths write through to the repository and invalidate.
//
// Thread Safety: safe for concurrent use.
type GraphCache struct {
	inner  Repository
	flight singleflight.Group

	mu      sync.RWMutex
	entries map[string][]byte
	// gen guards against a load that was in flight when an invalidation
	// happened repopulating the cache with pre-invalidation bytes.
	gen map[string]uint64

	hits   atomic.Int64
	misses atomic.Int64
}

// NewGraphCache wraps the repository with a read-through cache.
func NewGraphCache(inner Repository) *GraphCache {
	return &GraphCache{
		inner:   inner,
		entries: make(map[string][]byte),
		gen:     make(map[string]uint64),
	}
}

// Load returns the graph with the given ID, reading through to the
// repository on a miss. Concurrent misses for the same ID share one
// repository read.
func (c *GraphCache) Load(ctx context.Context, id string) (*graph.Graph, error) {
	c.mu.RLock()
	data, ok := c.entries[id]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return decodeGraph(data)
	}
	c.misses.Add(1)

	c.mu.RLock()
	genAtStart := c.gen[id]
	c.mu.RUnlock()

	v, err, _ := c.flight.Do(id, func() (interface{}, error) {
		g, err := c.inner.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(g)
		if err != nil {
			return nil, fmt.Errorf("encode graph %s for cache: %w", id, err)
		}

		c.mu.Lock()
		if c.gen[id] == genAtStart {
			c.entries[id] = data
		}
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeGraph(v.([]byte))
}

// Save writes through to the repository and invalidates the cached entry.
func (c *GraphCache) Save(ctx context.Context, g *graph.Graph) error {
	if err := c.inner.Save(ctx, g); err != nil {
		return err
	}
	c.Invalidate(g.ID)
	return nil
}

// Delete removes the graph from the repository and the cache.
func (c *GraphCache) Delete(ctx context.Context, id string) error {
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	c.Invalidate(id)
	return nil
}

// List passes through to the repository; listings are not cached.
func (c *GraphCache) List(ctx context.Context) ([]*graph.Graph, error) {
	return c.inner.List(ctx)
}

// Invalidate drops the cached entry for id. In-flight loads for the
// same id will not repopulate the cache with their now-stale result.
func (c *GraphCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.gen[id]++
	c.mu.Unlock()
	c.flight.Forget(id)
}

// Stats returns current hit/miss counters.
func (c *GraphCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: len(c.entries),
	}
}

func decodeGraph(data []byte) (*graph.Graph, error) {
	var g graph.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode cached graph: %w", err)
	}
	return &g, nil
}
