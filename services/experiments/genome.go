// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/themariolinml/Pixel-Groove/services/engine/backend"
)

const genomeBasePrompt = `You are the Chief Creative Officer at a world-class advertising agency that produces
campaigns for luxury brands, high-growth e-commerce, and premium SaaS products.

Your task: analyze a creative brief and extract a **Content Genome**, a set of
orthogonal creative dimensions whose combinations yield meaningfully different ad
executions that each feel like they were art-directed independently.

## Rules

1. Return exactly 3-5 dimensions.
2. Every dimension must be truly orthogonal: varying one must not force another to change.
3. Each dimension should have 2-4 values representing distinct creative directions.
4. **Values must be ultra-specific and evocative**, not generic.
   - BAD: "modern", "dark", "professional"
   - GOOD: "Wes Anderson pastel symmetry", "cinematic noir with rim lighting",
     "Apple-esque minimal white", "90s editorial grain"
5. Think about the dimensions that actually change how the final ad *looks and feels*:
   visual style, color palette, camera/composition language, emotional tone, narrative arc,
   product presentation angle, typography mood.
6. Infer the goal, target audience, and platform from the brief when not stated explicitly.
7. The genome should enable ads that range from aspirational luxury to bold performance marketing.
`

const genomeImageRule8 = `8. Extract a **desired_outcome**, a vivid description (2-4 sentences) of the ideal final
   creative IMAGE. The description must specify:
   - Objects, people, or products that MUST appear in the final image
   - The exact visual moment, composition, and camera angle
   - Lighting setup and color palette
   - Emotional beat and viewer reaction

   - BAD: "A nice product photo"
   - GOOD: "A luxury mechanical wristwatch resting on rough-hewn marble, sapphire crystal
     catching precise studio highlights. Shot from a 30-degree elevated angle on a macro lens.
     Three-point lighting with warm silver and deep charcoal palette. The viewer feels 'this
     is precision craftsmanship I aspire to own.' The watch face, brand logo, and marble
     texture MUST be clearly visible."
`

const genomeVideoRule8 = `8. Extract a **desired_outcome**, a vivid description (2-4 sentences) of the ideal final
   creative VIDEO. The description must specify:
   - Opening frame, camera movement, and visual beats
   - Objects, people, or products that MUST appear in the final video
   - Dialogue or voiceover with tone direction
   - Sound design, music mood, and pacing
   - Emotional arc and viewer reaction

   - BAD: "A nice product video that shows features"
   - GOOD: "A slow-motion close-up of the watch face catching golden afternoon light, a single
     water droplet rolling off the sapphire crystal. Camera pulls back to reveal it on the wrist
     of a confident executive overlooking a city skyline at sunset. Voice says: 'Time, mastered.'
     The watch face, executive's confident expression, and skyline MUST appear. The feeling is
     aspiration and quiet mastery."
`

const genomeRule9 = `9. Extract **required_assets**, a list of specific objects, people, products, or visual elements
   that MUST appear in the final creative output. Each asset needs a name and a detailed visual
   description sufficient for generating a reference image.
   Example: [{"name": "luxury wristwatch", "description": "Stainless steel case, sapphire crystal,
   blue dial with silver indices, brushed metal bracelet"}, {"name": "brand logo",
   "description": "Minimalist serif wordmark in white or silver, must be readable"}]
`

func buildGenomePrompt(artifactType string) string {
	rule8 := genomeVideoRule8
	if artifactType == ArtifactImage {
		rule8 = genomeImageRule8
	}
	return genomeBasePrompt + "\n" + rule8 + "\n" + genomeRule9
}

// genomeOutputFields is the structured-output schema the genome call
// constrains the model with.
var genomeOutputFields = []map[string]any{
	{
		"name": "dimensions",
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"fields": []any{
				map[string]any{"name": "name", "type": "string"},
				map[string]any{"name": "values", "type": "array", "items": "string"},
				map[string]any{"name": "description", "type": "string"},
			},
		},
	},
	{"name": "brief", "type": "string"},
	{"name": "goal", "type": "string"},
	{"name": "target_audience", "type": "string"},
	{"name": "platform", "type": "string"},
	{"name": "desired_outcome", "type": "string"},
	{
		"name": "required_assets",
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"fields": []any{
				map[string]any{"name": "name", "type": "string"},
				map[string]any{"name": "description", "type": "string"},
			},
		},
	},
}

// GenerateGenome distills a creative brief into a content genome using a
// structured LLM call.
func (s *Service) GenerateGenome(ctx context.Context, brief, artifactType string) (*ContentGenome, error) {
	prompt := fmt.Sprintf(`%s

Creative brief:
%s

Analyze this brief and return the Content Genome as JSON.`, buildGenomePrompt(artifactType), brief)

	response, err := s.ai.GenerateText(ctx, prompt, backend.Params{
		Temperature:  0.7,
		OutputMode:   "structured",
		OutputFields: genomeOutputFields,
	}, backend.MultimodalInputs{})
	if err != nil {
		return nil, fmt.Errorf("genome generation failed: %w", err)
	}

	var genome ContentGenome
	if err := json.Unmarshal([]byte(response), &genome); err != nil {
		s.logger.Error("failed to parse genome JSON", "error", err, "raw", truncate(response, 500))
		return nil, fmt.Errorf("model returned invalid JSON for genome: %w", err)
	}
	if genome.Brief == "" {
		genome.Brief = brief
	}
	return &genome, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
