// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themariolinml/Pixel-Groove/services/engine/backend"
	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

// fakeTextBackend records the last GenerateText call. The embedded interface
// panics on any other modality, which no enrichment path should reach.
type fakeTextBackend struct {
	backend.Backend

	lastPrompt string
	lastParams backend.Params
	reply      string
	err        error
}

func (f *fakeTextBackend) GenerateText(_ context.Context, prompt string, params backend.Params, _ backend.MultimodalInputs) (string, error) {
	f.lastPrompt = prompt
	f.lastParams = params
	return f.reply, f.err
}

func TestEnrich_ReturnsTrimmedRewrite(t *testing.T) {
	fake := &fakeTextBackend{reply: "  A vast mountain range at dusk.\n"}
	e := New(fake, nil)

	got := e.Enrich(context.Background(), "sunset over mountains", graph.NodeTypeGenerateImage)

	assert.Equal(t, "A vast mountain range at dusk.", got)
	assert.InDelta(t, 0.4, fake.lastParams.Temperature, 1e-9)
	assert.Contains(t, fake.lastPrompt, "Original prompt: sunset over mountains")
	assert.True(t, strings.HasSuffix(fake.lastPrompt, "Enriched prompt:"))
}

func TestEnrich_MetaPromptPerModality(t *testing.T) {
	cases := []struct {
		nodeType     graph.NodeType
		wantContains []string
		wantAbsent   []string
	}{
		{
			nodeType:     graph.NodeTypeGenerateImage,
			wantContains: []string{"for generate_image generation", "ALL 7 elements", "Naive: sunset over mountains"},
		},
		{
			nodeType:     graph.NodeTypeGenerateVideo,
			wantContains: []string{"mini film script", "Naive: car commercial"},
			wantAbsent:   []string{"ALL 7 elements"},
		},
		{
			nodeType:     graph.NodeTypeTransformImage,
			wantContains: []string{"ALL 7 elements", "Naive: remove background"},
		},
		{
			nodeType:     graph.NodeTypeGenerateMusic,
			wantContains: []string{"Examples:", "Naive: epic music"},
			wantAbsent:   []string{"ALL 7 elements", "mini film script"},
		},
		{
			nodeType:   graph.NodeTypeGenerateText,
			wantAbsent: []string{"ALL 7 elements", "mini film script", "Examples:"},
		},
		{
			nodeType:   graph.NodeTypeGenerateSpeech,
			wantAbsent: []string{"Examples:"},
		},
	}

	for _, tc := range cases {
		t.Run(string(tc.nodeType), func(t *testing.T) {
			fake := &fakeTextBackend{reply: "rewritten"}
			e := New(fake, nil)

			e.Enrich(context.Background(), "a prompt", tc.nodeType)

			for _, want := range tc.wantContains {
				assert.Contains(t, fake.lastPrompt, want)
			}
			for _, absent := range tc.wantAbsent {
				assert.NotContains(t, fake.lastPrompt, absent)
			}
		})
	}
}

func TestEnrich_FallsBackOnBackendError(t *testing.T) {
	fake := &fakeTextBackend{err: errors.New("model overloaded")}
	e := New(fake, nil)

	got := e.Enrich(context.Background(), "keep me", graph.NodeTypeGenerateVideo)

	assert.Equal(t, "keep me", got)
}

func TestEnrich_FallsBackOnEmptyRewrite(t *testing.T) {
	fake := &fakeTextBackend{reply: "   \n\t"}
	e := New(fake, nil)

	got := e.Enrich(context.Background(), "keep me", graph.NodeTypeGenerateImage)

	assert.Equal(t, "keep me", got)
}

func TestEnrich_EveryExampleModalityHasExpertPairs(t *testing.T) {
	for nodeType, examples := range fewShotExamples {
		require.NotEmpty(t, examples, "node type %s", nodeType)
		for _, ex := range examples {
			assert.NotEmpty(t, ex.naive)
			assert.Greater(t, len(ex.expert), len(ex.naive), "expert must expand %q", ex.naive)
		}
	}
}

func TestNoOp_ReturnsPromptUnchanged(t *testing.T) {
	got := NoOp{}.Enrich(context.Background(), "verbatim", graph.NodeTypeGenerateImage)
	assert.Equal(t, "verbatim", got)
}
