// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package schedule

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// DefaultConcurrency is the semaphore capacity for node types without a
// config entry.
const DefaultConcurrency = 4

// reloadDebounce batches the write bursts editors produce when saving.
const reloadDebounce = 200 * time.Millisecond

// NodeTypeConfig bounds one node type's concurrency and orders ready nodes.
// Higher priority dispatches first; ties keep insertion order.
type NodeTypeConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`
	Priority       int `yaml:"priority" json:"priority"`
}

// DefaultTypeConfigs returns the built-in concurrency table. Capacities
// encode the relative cost and throughput of the external backends.
func DefaultTypeConfigs() map[graph.NodeType]NodeTypeConfig {
	return map[graph.NodeType]NodeTypeConfig{
		graph.NodeTypeGenerateText:   {MaxConcurrency: 10, Priority: 5},
		graph.NodeTypeAnalyzeImage:   {MaxConcurrency: 8, Priority: 6},
		graph.NodeTypeGenerateImage:  {MaxConcurrency: 4, Priority: 3},
		graph.NodeTypeTransformImage: {MaxConcurrency: 4, Priority: 3},
		graph.NodeTypeGenerateSpeech: {MaxConcurrency: 4, Priority: 4},
		graph.NodeTypeGenerateMusic:  {MaxConcurrency: 3, Priority: 2},
		graph.NodeTypeGenerateVideo:  {MaxConcurrency: 2, Priority: 1},
	}
}

type fileConfig struct {
	NodeTypes map[string]NodeTypeConfig `yaml:"node_types"`
}

// LoadTypeConfigs reads a YAML override file and merges it over the
// defaults. Types absent from the file keep their built-in entry.
func LoadTypeConfigs(path string) (map[graph.NodeType]NodeTypeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scheduler config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse scheduler config: %w", err)
	}

	configs := DefaultTypeConfigs()
	for name, cfg := range fc.NodeTypes {
		nt := graph.NodeType(name)
		if !nt.IsValid() {
			return nil, fmt.Errorf("unknown node type %q in scheduler config", name)
		}
		if cfg.MaxConcurrency <= 0 {
			return nil, fmt.Errorf("node type %q: max_concurrency must be positive", name)
		}
		configs[nt] = cfg
	}
	return configs, nil
}

// Table holds the active concurrency table and supports replacement while
// batches run. A batch snapshots the table at start; replacements apply to
// batches started afterwards.
type Table struct {
	mu      sync.RWMutex
	configs map[graph.NodeType]NodeTypeConfig
}

// NewTable wraps a config map; nil means the built-in defaults.
func NewTable(configs map[graph.NodeType]NodeTypeConfig) *Table {
	if configs == nil {
		configs = DefaultTypeConfigs()
	}
	return &Table{configs: configs}
}

// Snapshot returns a copy of the current table.
func (t *Table) Snapshot() map[graph.NodeType]NodeTypeConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.configs)
}

// Replace swaps in a new table.
func (t *Table) Replace(configs map[graph.NodeType]NodeTypeConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.configs = configs
}

// WatchConfig reloads the table whenever the file at path changes. A broken
// edit keeps the previous table and logs a warning. The returned stop
// function ends the watch; it is safe to call more than once.
//
// The watch is registered on the parent directory because editors replace
// files by rename, which silently drops a watch on the file itself.
func WatchConfig(path string, table *Table, logger *slog.Logger) (func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	done := make(chan struct{})
	go func() {
		var timer *time.Timer
		var pending <-chan time.Time
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
					pending = timer.C
				} else {
					timer.Reset(reloadDebounce)
				}
			case <-pending:
				timer = nil
				pending = nil
				configs, err := LoadTypeConfigs(path)
				if err != nil {
					logger.Warn("scheduler config reload failed, keeping previous table",
						"path", path, "error", err)
					continue
				}
				table.Replace(configs)
				logger.Info("scheduler config reloaded", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("scheduler config watcher error", "error", err)
			}
		}
	}()

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			close(done)
			watcher.Close()
		})
	}
	return stop, nil
}
