// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package schedule

import "context"

// Semaphore is a counting semaphore bounding how many nodes of one type run
// at once. Safe for concurrent use.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore creates a semaphore with the given capacity. Capacity below
// one is treated as one.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{ch: make(chan struct{}, capacity)}
}

// Acquire claims a slot, blocking until one frees or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire claims a slot without blocking.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot. Must pair with a successful Acquire/TryAcquire.
func (s *Semaphore) Release() {
	select {
	case <-s.ch:
	default:
		panic("schedule: semaphore release without acquire")
	}
}

// Available reports how many slots are free.
func (s *Semaphore) Available() int {
	return cap(s.ch) - len(s.ch)
}
