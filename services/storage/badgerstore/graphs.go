// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

const graphPrefix = "graphs/"

func graphKey(id string) []byte { return []byte(graphPrefix + id) }

// GraphRepo stores pipeline graphs as JSON records under "graphs/" keys.
type GraphRepo struct {
	db     *DB
	logger *slog.Logger
}

// NewGraphRepo creates a graph repository on an open database.
func NewGraphRepo(db *DB, logger *slog.Logger) *GraphRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphRepo{db: db, logger: logger}
}

// Save writes the graph, stamping UpdatedAt.
func (r *GraphRepo) Save(ctx context.Context, g *graph.Graph) error {
	g.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal graph %s: %w", g.ID, err)
	}
	return r.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(graphKey(g.ID), data)
	})
}

// Load reads the graph with the given ID, returning a
// *graph.GraphNotFoundError when no such record exists.
func (r *GraphRepo) Load(ctx context.Context, id string) (*graph.Graph, error) {
	var g graph.Graph
	err := r.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(graphKey(id))
		if err == badger.ErrKeyNotFound {
			return &graph.GraphNotFoundError{GraphID: id}
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &g)
		})
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Delete removes the graph. Deleting an absent graph is a no-op.
func (r *GraphRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(graphKey(id))
	})
}

// List returns every stored graph. Badger iterates keys in order, so
// the result is already sorted by graph ID.
func (r *GraphRepo) List(ctx context.Context) ([]*graph.Graph, error) {
	out := []*graph.Graph{}
	prefix := []byte(graphPrefix)
	err := r.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var g graph.Graph
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &g)
			})
			if err != nil {
				r.logger.Warn("skipping unreadable graph record",
					slog.String("key", string(it.Item().Key())),
					slog.String("error", err.Error()))
				continue
			}
			out = append(out, &g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
