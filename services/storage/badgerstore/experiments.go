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

	"github.com/themariolinml/Pixel-Groove/services/experiments"
)

const experimentPrefix = "experiments/"

func experimentKey(id string) []byte { return []byte(experimentPrefix + id) }

// ExperimentRepo stores experiments as JSON records under
// "experiments/" keys.
type ExperimentRepo struct {
	db     *DB
	logger *slog.Logger
}

// NewExperimentRepo creates an experiment repository on an open database.
func NewExperimentRepo(db *DB, logger *slog.Logger) *ExperimentRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExperimentRepo{db: db, logger: logger}
}

// Save writes the experiment, stamping UpdatedAt.
func (r *ExperimentRepo) Save(ctx context.Context, e *experiments.Experiment) error {
	e.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal experiment %s: %w", e.ID, err)
	}
	return r.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(experimentKey(e.ID), data)
	})
}

// Load reads the experiment with the given ID, returning a
// *experiments.NotFoundError when no such record exists.
func (r *ExperimentRepo) Load(ctx context.Context, id string) (*experiments.Experiment, error) {
	var e experiments.Experiment
	err := r.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(experimentKey(id))
		if err == badger.ErrKeyNotFound {
			return &experiments.NotFoundError{ExperimentID: id}
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Delete removes the experiment. Deleting an absent experiment is a
// no-op.
func (r *ExperimentRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(experimentKey(id))
	})
}

// List returns every stored experiment sorted by ID.
func (r *ExperimentRepo) List(ctx context.Context) ([]*experiments.Experiment, error) {
	out := []*experiments.Experiment{}
	prefix := []byte(experimentPrefix)
	err := r.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e experiments.Experiment
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				r.logger.Warn("skipping unreadable experiment record",
					slog.String("key", string(it.Item().Key())),
					slog.String("error", err.Error()))
				continue
			}
			out = append(out, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
