// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runs

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// DefaultMemoryBudget bounds how much canvas memory is forwarded into node
// prompts. The rest of the context window stays available for the prompt
// itself and upstream text.
const DefaultMemoryBudget = 4000

var memorySeparators = []string{"\n\n", "\n", " ", ""}

// Memory resolves the context text a graph contributes to every node prompt
// of one of its runs. Resolution happens once per run, before any node
// executes.
type Memory interface {
	Resolve(ctx context.Context, g *graph.Graph) (string, error)
}

// StaticMemory serves the graph's stored canvas memory. Texts over the
// budget are clipped to the leading chunk, split on paragraph boundaries
// where possible.
type StaticMemory struct {
	budget int
}

// NewStaticMemory builds the default Memory. A non-positive budget falls
// back to DefaultMemoryBudget.
func NewStaticMemory(budget int) *StaticMemory {
	if budget <= 0 {
		budget = DefaultMemoryBudget
	}
	return &StaticMemory{budget: budget}
}

// Resolve implements Memory.
func (m *StaticMemory) Resolve(_ context.Context, g *graph.Graph) (string, error) {
	text := strings.TrimSpace(g.CanvasMemory)
	if len(text) <= m.budget {
		return text, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(m.budget),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(memorySeparators),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return "", fmt.Errorf("clip canvas memory for graph %s: %w", g.ID, err)
	}
	if len(chunks) == 0 {
		return "", nil
	}
	return strings.TrimSpace(chunks[0]), nil
}
