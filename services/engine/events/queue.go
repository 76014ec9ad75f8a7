// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"log/slog"
	"sync"
)

// DefaultQueueCapacity bounds how many undelivered events one run may hold.
const DefaultQueueCapacity = 256

// Queue carries one run's events from the driver to its subscriber.
//
// Pushing never blocks the producer: when the subscriber stalls long enough
// to fill the buffer, further events are dropped with a warning (the slow
// consumer loses data, the workers keep moving). Close ends the stream;
// consumers range over Events until the channel closes.
type Queue struct {
	ch        chan Event
	closeOnce sync.Once

	mu      sync.Mutex
	dropped int
}

// NewQueue allocates a queue with the given buffer capacity; zero or
// negative means DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// Push enqueues an event, dropping it when the buffer is full.
func (q *Queue) Push(e Event) {
	select {
	case q.ch <- e:
	default:
		q.mu.Lock()
		q.dropped++
		n := q.dropped
		q.mu.Unlock()
		slog.Warn("event queue full, dropping event",
			"event_type", e.Type, "execution_id", e.ExecutionID,
			"batch_id", e.BatchID, "dropped_total", n)
	}
}

// Close ends the stream. Safe to call more than once; Push after Close
// panics, so producers must stop first.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

// Events returns the receive side of the queue.
func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Dropped reports how many events were discarded because the buffer was
// full.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
