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
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/themariolinml/Pixel-Groove/services/engine/backend"
	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

var imageModelTiers = fmt.Sprintf(
	"| model ID         | engine         | image_size | upstream images | use for                                       |\n"+
		"|------------------|----------------|------------|-----------------|-----------------------------------------------|\n"+
		"| %q | Imagen 4 Fast  | NO         | NO              | Quick concept sketches, iteration drafts      |\n"+
		"| %q | Imagen 4       | 1K/2K      | NO              | Solid general-purpose quality                 |\n"+
		"| %q | Imagen 4 Ultra | 1K/2K      | NO              | Hero shots, product photography, final images |\n"+
		"| %q | Flash Image    | NO         | YES             | Fast reference images, upstream context       |\n"+
		"| %q | Pro Image      | 1K/2K/4K   | YES             | Complex scenes, text-in-image, reasoning-heavy|",
	ImageModelFast, ImageModelStd, ImageModelUltra, ImageModelFlash, ImageModelPro)

var architectBasePrompt = fmt.Sprintf(`You are an elite AI creative director and media production architect. You design multi-step
creative pipelines as DAGs (directed acyclic graphs) that produce **world-class, editorial-quality
advertising content**, the kind seen in Vogue, Apple campaigns, and luxury brand lookbooks
for E-commerce consumer products or software companies.

Your pipelines must produce output indistinguishable from a professional creative agency's work.

## Available node types

| type               | output  | what it does                                               |
|--------------------|---------|------------------------------------------------------------|
| generate_text      | text    | LLM text generation: ad copy, scripts, prompt refinement   |
| generate_image     | image   | Image generation (5 model tiers, see below)                |
| generate_video     | video   | Video generation (Veo 3.1, includes native audio)          |
| analyze_image      | text    | Describe / analyze an image                                |
| transform_image    | image   | Re-generate an image with modifications                    |

## Image model tiers (set via params.model)

%s

Only set "params.image_size" for models that support it (see "image_size" column above).
Allowed values: "1K", "2K", or "4K" (4K only on Pro Image).
Do NOT set image_size for Imagen 4 Fast or Flash Image: they will error.

### Upstream image context (Flash/Pro only)
When a generate_image node using Flash or Pro has upstream images connected, those images
are passed as visual context, useful for style-consistent series or image editing.
Imagen models ignore upstream images.

## Port wiring
- Every node has one input "in" (ANY) and one typed output.
- A node receives ALL upstream outputs: texts become texts[], images become images[].
- generate_text can accept upstream images/audio/video as multimodal context.

## Output format

Return a JSON object of this exact shape:

{
  "hooks": [
    {
      "genome_label": {"dimension_name": "selected_value"},
      "steps": [
        {
          "role": "unique_role_name",
          "type": "generate_text",
          "label": "Human-readable label",
          "prompt": "You are a senior art director. Write a single image generation prompt...",
          "params": {},
          "depends_on": []
        },
        {
          "role": "hero_image",
          "type": "generate_image",
          "label": "Hero product shot",
          "prompt": "",
          "params": {"model": "<PRIMARY_MODEL from artifact section>", "aspect_ratio": "4:3"},
          "depends_on": ["prompt_writer"]
        }
      ]
    }
  ]
}

- Each hook MUST use a different combination of genome dimension values.
- "depends_on" lists role names of upstream steps.
- Root nodes (no dependencies) run in parallel. The graph must be a valid DAG.
- When a node depends on a generate_text "prompt writer", leave its own "prompt" field empty:
  the upstream text becomes its prompt automatically.
`, imageModelTiers)

const imageArchitectPrompt = `## IMAGE PIPELINE DESIGN

### Image prompt writing guide

Write each image prompt as a **rich narrative paragraph**, NOT a keyword list.
Follow this structure for every image prompt:

1. **Subject & action**: Who/what is in the frame, what are they doing, what expression.
2. **Setting & environment**: Where, and be specific (marble countertop, sunlit loft, desert dunes).
3. **Composition & camera**: Shot type (close-up, 3/4, overhead flat lay), lens (85mm f/1.4,
   35mm wide-angle, macro 100mm), angle (45-degree elevated, eye-level, low-angle heroic).
4. **Lighting**: Direction, quality, color: "soft golden-hour side lighting with subtle rim
   light separating subject from background" or "high-key studio lighting with dual softboxes".
5. **Color palette & mood**: Dominant colors, emotional tone: "muted earth tones with a pop of
   burnt orange, evoking warmth and sophistication" or "cool blue-silver palette, clinical precision".
6. **Texture & materials**: Surface qualities: "matte ceramic with visible grain",
   "brushed gold hardware catching specular highlights", "silk with visible thread texture".
7. **Style & quality keywords**: "editorial product photography, 4K, HDR, shot on Phase One
   medium format, Vogue aesthetic" or "hyper-realistic 3D render, octane, studio lighting".

Example of an excellent image prompt:
"A single bottle of artisanal olive oil on a rough-hewn marble slab, surrounded by scattered
rosemary sprigs and a cracked terracotta bowl of green olives. Shot from a 30-degree elevated
angle on an 85mm f/2 lens with shallow depth of field. Warm late-afternoon directional light
streams from the left, casting soft shadows and making the golden oil glow. Color palette:
warm whites, sage green, terracotta, and deep gold. Ultra-realistic editorial food photography,
4K, HDR, Kinfolk magazine aesthetic."

### Text prompts for downstream image nodes (generate_text)

When using generate_text to craft prompts for downstream image nodes, instruct it to:
- Write in the rich narrative paragraph style above
- Include all 7 elements (subject, setting, composition, lighting, palette, texture, quality)
- Reference the specific genome dimension values naturally
- Output ONLY the final prompt text, no explanations

### Pipeline design principles for IMAGE

1. **Use generate_text as a "prompt writer" node.** Don't write image prompts directly
   in the step spec if they would be generic. Instead, have a generate_text node craft a
   world-class prompt that incorporates the brief, genome values, and professional photography
   language, then feed its output into the image node.

2. **Use BRANCHING.** Multiple independent branches, potentially converging at one or more
   terminal image nodes (when the brief warrants multiple final images).
   - Prompt branch: generate_text crafts a detailed art-directed prompt
   - Reference branch: generate a reference image for consistency
   - Hero branch: final generate_image produces the key visual

3. **Use the PRIMARY MODEL for ALL generate_image nodes** (specified in the "Final artifact type"
   section below). Do NOT mix different image models within a hook: use the same model everywhere.
   Check the model tiers table for param compatibility before setting image_size.

4. **Aim for 4-7 nodes per hook** (more when producing multiple final images). A 2-node graph
   (text to image) is lazy. A well-designed pipeline has:
   - 1-2 generate_text nodes (prompt writing)
   - 1-2 generate_image nodes (reference images, hero visual)
   - Optional analyze_image then refine loop

5. **Do NOT include generate_video, generate_speech, or generate_music nodes.**
   This is an image-only pipeline.

6. **VARY THE GRAPH ARCHITECTURE across hooks.** Do NOT use the same pipeline shape
   for every hook. Mix up the structure:
   - Some hooks: text to image (simple but with expert prompt)
   - Some hooks: text, reference image, text (analyze), final image
   - Some hooks: parallel branches (multiple reference images merge at final)
   - Some hooks: text, image, analyze_image, text, transform_image (iterative refinement)
   - Vary the number of nodes (3-7), the branching factor, and which node types appear.

### Pre-generating reference images for complex subjects

When the brief involves specific products, characters, or complex scenes with multiple required
elements, use this pattern:
1. Use a generate_text node to write a detailed reference image prompt describing the key
   subject/product in isolation: perfect lighting, clear detail, neutral background
2. Generate the reference image using the PRIMARY MODEL (specified in the "Final artifact type" section)
3. Connect this reference image as upstream context to downstream image nodes

When required_assets are specified in the genome, generate a reference image for each asset
that needs visual consistency across the pipeline.
`

const videoArchitectPrompt = `## VIDEO PIPELINE DESIGN

### Veo 3.1 native audio
Veo generates video WITH dialogue, voiceover, SFX, and music built-in.
- Do NOT add separate generate_speech or generate_music nodes.
- Bake all audio direction into the video node's prompt: dialogue in quotes, voice tone,
  background music genre/mood, sound effects.

### Video reference images
generate_video with "reference_mode": true treats up to 3 connected images as Veo
reference images for character/style consistency.

### Video prompt writing guide

Write each video prompt as a **mini film script** with visual + audio direction:

1. **Opening**: Describe the first frame: scene, subject position, camera position.
2. **Camera movement**: Slow dolly in, tracking pan, crane up, static close-up.
3. **Action & pacing**: What happens beat-by-beat over the 4-8 second clip.
4. **Dialogue/voiceover**: In quotation marks with voice direction:
   "A warm, confident female voice says: 'This is where it begins.'"
5. **Sound design**: Background music genre/mood, ambient sounds, SFX:
   "Minimal piano melody, soft fabric rustling, gentle room tone."
6. **Lighting & atmosphere**: "Natural window light, soft lens flare, dreamy shallow DOF."
7. **Style reference**: "Cinematic, 24fps filmic look, warm color grade, Terrence Malick"

Example of an excellent video prompt:
"Opening on a luxury wristwatch resting on dark emperador marble, soft studio lighting making
the sapphire crystal gleam. A slow dolly moves in from mid-shot to extreme close-up over 3
seconds, revealing the sweep of the second hand. A confident male voice says: 'Precision is
not a feature. It is a philosophy.' The camera pulls back smoothly to reveal the watch on a
wrist overlooking a city skyline at golden hour. Warm orchestral strings swell gently, mixed
with the soft mechanical tick of the movement. Cinematic, anamorphic lens flare, warm color
grade, luxury automotive commercial aesthetic."

### Text prompts for downstream video nodes (generate_text)

When using generate_text to craft prompts for downstream video nodes, instruct it to:
- Write as a mini film script with all 7 elements above
- Include dialogue/voiceover in quotes with voice direction
- Include sound design, camera movement, and pacing
- Reference the specific genome dimension values naturally
- Output ONLY the final prompt text, no explanations

### Pipeline design principles for VIDEO

1. **Use generate_text as a "prompt writer" and "script writer" node.** Have separate nodes for:
   - A "script writer" that crafts the video narrative, dialogue, sound design
   - A "prompt writer" that assembles the full video generation prompt

2. **Use BRANCHING to prepare assets before the final video node.**
   - Script branch: generate_text writes the video script / narrative
   - Reference branch: generate reference images for characters,
     products, or key visual elements, connected to the video node with "reference_mode": true
   - Final: all branches converge at the generate_video node

3. **Use the PRIMARY IMAGE MODEL for ALL generate_image nodes** (specified in the "Final artifact
   type" section below). Do NOT mix different image models: use the same model everywhere.
   Check the model tiers table for param compatibility before setting image_size.

4. **Aim for 4-7 nodes per hook.** A well-designed video pipeline has:
   - 1-2 generate_text nodes (script writing, prompt crafting)
   - 1-3 generate_image nodes (reference images for characters/products/scenes)
   - 1 generate_video terminal node

5. **Do NOT add separate generate_speech or generate_music nodes**: Veo 3.1 handles all audio.

6. **VARY THE GRAPH ARCHITECTURE across hooks.** Do NOT use the same pipeline shape:
   - Some hooks: text (script) to video (simple but with expert prompt)
   - Some hooks: parallel reference images + script merging at video
   - Some hooks: text, image, analyze_image, refined text, video (iterative)
   - Some hooks: multiple reference images for different subjects, video with reference_mode
   - Vary the number of nodes (3-7), the branching factor, and which node types appear.

### Pre-generating reference images for complex subjects

When the brief involves specific products, characters, or complex scenes with multiple required
elements, use this pattern:
1. Use a generate_text node to write a detailed reference image prompt describing the key
   subject/product in isolation: perfect lighting, clear detail, neutral background
2. Generate the reference image using the PRIMARY IMAGE MODEL (specified in the "Final artifact type" section)
3. Connect up to 3 reference images to the video node with "reference_mode": true

This ensures the final video maintains visual consistency for complex subjects that Veo
might otherwise simplify or alter.

When required_assets are specified in the genome, generate a reference image for each asset
that needs visual consistency in the final video.
`

const referenceAnalysisPrompt = `Provide an exhaustive visual analysis of this reference image for a creative director who needs to recreate its essence. Analyze with extreme precision:

1. COMPOSITION: Framing (rule of thirds, centered, asymmetric), camera angle, depth layers, negative space
2. COLOR PALETTE: 5 dominant colors with precise descriptions, temperature, contrast, saturation
3. LIGHTING: Direction, quality (hard/soft), shadow character, highlights, rim lighting
4. MOOD & ATMOSPHERE: Emotional tone in 3 words, energy level, time-of-day feeling
5. STYLE: Photography/art style, post-processing look, era references
6. TEXTURE & MATERIALS: Surface qualities, material types, depth
7. SUBJECT TREATMENT: How the main subject is presented

Write as a dense analytical paragraph. Another creative director should be able to art-direct a matching image from your description alone.`

// Canvas layout constants for auto-positioning generated nodes.
const (
	layoutXStart   = 50
	layoutYStart   = 50
	layoutXSpacing = 320
	layoutYSpacing = 180
)

type stepSpec struct {
	Role      string         `json:"role"`
	Type      string         `json:"type"`
	Label     string         `json:"label"`
	Prompt    string         `json:"prompt"`
	Params    map[string]any `json:"params"`
	DependsOn []string       `json:"depends_on"`
}

type hookSpec struct {
	GenomeLabel map[string]string `json:"genome_label"`
	Steps       []stepSpec        `json:"steps"`
}

// GenerateHookGraphs asks the pipeline architect to design p.Count distinct
// hook graphs for the genome, then compiles each design into a real graph.
func (s *Service) GenerateHookGraphs(ctx context.Context, p HookGraphParams) ([]HookGraph, error) {
	if p.Genome == nil {
		return nil, fmt.Errorf("a genome is required before designing hooks")
	}
	if p.Count <= 0 {
		p.Count = 4
	}

	refDescription := ""
	if len(p.ReferenceImage) > 0 {
		desc, err := s.ai.AnalyzeImage(ctx, p.ReferenceImage, referenceAnalysisPrompt, backend.Params{Temperature: 0.3})
		if err != nil {
			return nil, fmt.Errorf("reference image analysis failed: %w", err)
		}
		refDescription = desc
	}

	specs, err := s.callArchitect(ctx, p, refDescription)
	if err != nil {
		return nil, err
	}

	canvasDirective := buildCanvasDirective(p.Genome, refDescription)

	var results []HookGraph
	for i, spec := range specs {
		if len(spec.Steps) == 0 {
			s.logger.Warn("hook has no steps, skipping", "hook", i)
			continue
		}

		labelParts := make([]string, 0, len(spec.GenomeLabel))
		for _, k := range sortedKeys(spec.GenomeLabel) {
			labelParts = append(labelParts, fmt.Sprintf("%s=%s", k, spec.GenomeLabel[k]))
		}
		hookName := p.ExperimentName
		if len(labelParts) > 0 {
			hookName = fmt.Sprintf("%s - %s", p.ExperimentName, strings.Join(labelParts, " · "))
		}

		g := s.buildGraphFromSteps(spec.Steps, hookName)
		if len(g.Nodes) == 0 {
			s.logger.Warn("hook compiled to an empty graph, skipping", "hook", i)
			continue
		}
		g.CanvasMemory = canvasDirective
		results = append(results, HookGraph{Graph: g, GenomeLabel: spec.GenomeLabel})
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("pipeline architect produced no valid graphs")
	}
	return results, nil
}

// buildCanvasDirective assembles the creative directive every node in a
// hook graph sees as canvas memory.
func buildCanvasDirective(genome *ContentGenome, refDescription string) string {
	var parts []string
	if genome.DesiredOutcome != "" {
		parts = append(parts,
			"CREATIVE DIRECTIVE (highest priority, all content must realize this vision):\n"+genome.DesiredOutcome)
	}
	if refDescription != "" {
		usage := genome.ReferenceImageUsage
		if usage == "" {
			usage = "style"
		}
		usageLabels := map[string]string{
			"style":       "Match the reference image's visual style and aesthetic",
			"composition": "Follow the reference image's composition and framing",
			"mood":        "Capture the reference image's emotional tone and atmosphere",
			"recreate":    "Closely recreate the reference image's overall look",
		}
		label, ok := usageLabels[usage]
		if !ok {
			label = usageLabels["style"]
		}
		parts = append(parts, fmt.Sprintf("REFERENCE IMAGE DIRECTION (%s):\n%s", label, refDescription))
	}
	return strings.Join(parts, "\n\n")
}

func (s *Service) callArchitect(ctx context.Context, p HookGraphParams, refDescription string) ([]hookSpec, error) {
	genome := p.Genome

	dimensionLines := make([]string, 0, len(genome.Dimensions))
	for _, d := range genome.Dimensions {
		dimensionLines = append(dimensionLines,
			fmt.Sprintf("  - %s: %s (%s)", d.Name, strings.Join(d.Values, ", "), d.Description))
	}

	assetsSection := ""
	if len(genome.RequiredAssets) > 0 {
		assetLines := make([]string, 0, len(genome.RequiredAssets))
		for _, a := range genome.RequiredAssets {
			assetLines = append(assetLines, fmt.Sprintf("  - **%s**: %s", a.Name, a.Description))
		}
		assetsSection = fmt.Sprintf(`## Required Assets

The following elements MUST appear in the final output. For each, consider generating
a dedicated reference image early in the pipeline to ensure visual consistency:

%s`, strings.Join(assetLines, "\n"))
	}

	var creativeSections []string
	if genome.DesiredOutcome != "" {
		creativeSections = append(creativeSections, fmt.Sprintf(`## Creative Directive: Desired Outcome

The client has specified exactly what they want the final creative to look and feel like:

> %s

This is the NORTH STAR for every pipeline you design. Your terminal node's prompt must
describe this exact outcome. Every upstream prompt-writer node must craft prompts that
build toward realizing this specific vision. Do not deviate.`, genome.DesiredOutcome))
	}
	if refDescription != "" {
		usage := genome.ReferenceImageUsage
		if usage == "" {
			usage = "style"
		}
		usageMap := map[string]string{
			"style":       "Match the visual style, color grading, lighting approach, and aesthetic of the reference image. The subject matter may differ, but the look and feel must be consistent.",
			"composition": "Follow the composition, framing, camera angle, and spatial arrangement of the reference image. Adapt subject matter but preserve compositional structure.",
			"mood":        "Capture the emotional tone, atmosphere, and feeling of the reference image. Visuals may differ but must evoke the same emotional response.",
			"recreate":    "Closely recreate the reference image with the brief's subject matter. Match composition, style, lighting, color palette, and mood as closely as possible.",
		}
		instruction, ok := usageMap[usage]
		if !ok {
			instruction = usageMap["style"]
		}
		creativeSections = append(creativeSections, fmt.Sprintf(`## Reference Image Analysis

The client provided a reference image (usage: **%s**).

Detailed analysis:
%s

Instruction: %s

Incorporate this reference direction into every prompt-writer node's instructions.`, usage, refDescription, instruction))
	}

	var artifactInstruction string
	if p.ArtifactType == ArtifactImage {
		var outputInstruction string
		switch {
		case p.ImagesPerHook != nil && *p.ImagesPerHook > 1:
			outputInstruction = fmt.Sprintf(
				"Each hook MUST produce exactly %d final output images.\n"+
					"Design the pipeline with %d terminal generate_image nodes, each with a distinct composition or focus.\n",
				*p.ImagesPerHook, *p.ImagesPerHook)
		case p.ImagesPerHook != nil && *p.ImagesPerHook == 1:
			outputInstruction = "Each hook MUST produce exactly 1 final output image.\n"
		default:
			outputInstruction = "Determine the optimal number of final output images per hook.\n" +
				"If the brief involves many distinct objects, scenes, or compositions that " +
				"can't fit naturally in one image, design the pipeline with multiple terminal " +
				"generate_image nodes (each focused on a specific composition or subject). " +
				"For simpler briefs, a single hero image is sufficient.\n" +
				"When using multiple terminal nodes, each should have a distinct label " +
				"describing its focus (e.g., 'Hero product shot', 'Lifestyle context shot').\n"
		}
		artifactInstruction = fmt.Sprintf(
			"%sPRIMARY MODEL: %q. Use this for ALL generate_image nodes.\n"+
				"Check the model tiers table above for this model's param compatibility "+
				"(image_size support, upstream image support) and set params accordingly.\n"+
				"Do NOT include generate_video, generate_speech, or generate_music nodes.",
			outputInstruction, p.ImageModel)
	} else {
		artifactInstruction = fmt.Sprintf(
			"The FINAL output node of each pipeline MUST be a generate_video node.\n"+
				"Video model: %q.\n"+
				"PRIMARY IMAGE MODEL: %q. Use this for ALL generate_image nodes "+
				"(reference images, concept images, etc.).\n"+
				"Check the model tiers table above for param compatibility before setting image_size.",
			p.VideoModel, p.ImageModel)
	}

	briefSection := fmt.Sprintf(`## The brief

%s

Goal: %s
Target audience: %s
Platform: %s`, genome.Brief, genome.Goal, genome.TargetAudience, genome.Platform)

	genomeSection := fmt.Sprintf(`## Content Genome dimensions

%s`, strings.Join(dimensionLines, "\n"))

	finalSection := fmt.Sprintf(`## Final artifact type: %s

%s

Design %d distinct creative pipeline hooks. Each hook should:
1. Pick a unique combination of genome dimension values
2. Design a multi-step DAG with 4-7 nodes that produces the final %s
3. Use generate_text "prompt writer" nodes upstream to craft detailed, art-directed prompts
4. Choose the right image model tier for each node's purpose
5. Write every prompt as a rich narrative with composition, lighting, mood, and camera language
6. Use branching where it makes creative sense
`, strings.ToUpper(p.ArtifactType), artifactInstruction, p.Count, p.ArtifactType)

	mediumPrompt := videoArchitectPrompt
	if p.ArtifactType == ArtifactImage {
		mediumPrompt = imageArchitectPrompt
	}

	promptParts := []string{architectBasePrompt + "\n\n" + mediumPrompt, briefSection, genomeSection}
	if assetsSection != "" {
		promptParts = append(promptParts, assetsSection)
	}
	if len(creativeSections) > 0 {
		promptParts = append(promptParts, strings.Join(creativeSections, "\n\n"))
	}
	promptParts = append(promptParts, finalSection)
	prompt := strings.Join(promptParts, "\n\n")

	response, err := s.ai.GenerateText(ctx, prompt, backend.Params{
		Temperature: 0.6,
		OutputMode:  "json",
	}, backend.MultimodalInputs{})
	if err != nil {
		return nil, fmt.Errorf("pipeline architect call failed: %w", err)
	}

	specs, err := parseHookSpecs(response)
	if err != nil {
		s.logger.Error("failed to parse architect response", "error", err, "raw", truncate(response, 500))
		return nil, err
	}
	return specs, nil
}

// parseHookSpecs accepts either a bare JSON array of hooks or an object
// wrapping the array under one of several plausible keys.
func parseHookSpecs(raw string) ([]hookSpec, error) {
	trimmed := strings.TrimSpace(raw)

	var specs []hookSpec
	if err := json.Unmarshal([]byte(trimmed), &specs); err == nil {
		return specs, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return nil, fmt.Errorf("model returned invalid JSON for graph designs: %w", err)
	}
	for _, key := range []string{"hooks", "variations", "specs", "results", "graphs", "pipelines"} {
		rawList, ok := envelope[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(rawList, &specs); err == nil {
			return specs, nil
		}
	}
	return nil, fmt.Errorf("expected a JSON object with a %q array, got keys %v", "hooks", sortedKeys(envelope))
}

// buildGraphFromSteps compiles architect step specs into a graph. Steps
// with unknown node types and edges that fail validation are dropped with
// a warning rather than failing the whole hook.
func (s *Service) buildGraphFromSteps(steps []stepSpec, name string) *graph.Graph {
	g := graph.New(uuid.New().String(), name)

	valid := make([]stepSpec, 0, len(steps))
	for _, step := range steps {
		if !graph.NodeType(step.Type).IsValid() {
			s.logger.Warn("unknown node type, skipping step", "type", step.Type, "role", step.Role)
			continue
		}
		valid = append(valid, step)
	}

	layers := computeLayers(valid)
	roleToNodeID := make(map[string]string, len(valid))
	perLayerCount := make(map[int]int)

	for _, step := range valid {
		nodeID := uuid.New().String()
		roleToNodeID[step.Role] = nodeID

		layer := layers[step.Role]
		yIndex := perLayerCount[layer]
		perLayerCount[layer]++

		pos := graph.Position{
			X: float64(layoutXStart + layer*layoutXSpacing),
			Y: float64(layoutYStart + yIndex*layoutYSpacing),
		}

		params := make(map[string]any, len(step.Params)+2)
		for k, v := range step.Params {
			params[k] = v
		}
		if step.Prompt != "" {
			params["prompt"] = step.Prompt
		}
		// The architect already writes expert prompts; skip enrichment.
		params["enrich"] = false

		label := step.Label
		if label == "" {
			label = step.Role
		}
		g.AddNode(graph.NewNode(nodeID, graph.NodeType(step.Type), label, params, pos))
	}

	for _, step := range valid {
		toNodeID := roleToNodeID[step.Role]
		toNode := g.Node(toNodeID)
		if toNode == nil || len(toNode.InputPorts) == 0 {
			continue
		}
		toPort := toNode.InputPorts[0]

		for _, depRole := range step.DependsOn {
			fromNodeID, ok := roleToNodeID[depRole]
			if !ok {
				s.logger.Warn("depends_on role not found, skipping edge", "role", depRole)
				continue
			}
			fromNode := g.Node(fromNodeID)
			if fromNode == nil || len(fromNode.OutputPorts) == 0 {
				continue
			}
			if _, err := g.AddEdge(fromNodeID, fromNode.OutputPorts[0].ID, toNodeID, toPort.ID); err != nil {
				s.logger.Warn("dropping invalid architect edge", "from", depRole, "to", step.Role, "error", err)
			}
		}
	}

	return g
}

// computeLayers assigns each step a topological layer for positioning.
// Roots sit at layer 0; anything else is one past its deepest dependency.
func computeLayers(steps []stepSpec) map[string]int {
	deps := make(map[string][]string, len(steps))
	for _, step := range steps {
		deps[step.Role] = step.DependsOn
	}

	layers := make(map[string]int, len(steps))
	var walk func(role string, visited map[string]bool) int
	walk = func(role string, visited map[string]bool) int {
		if l, ok := layers[role]; ok {
			return l
		}
		if visited[role] { // cycle guard
			return 0
		}
		visited[role] = true
		maxDep := -1
		for _, dep := range deps[role] {
			if _, known := deps[dep]; !known {
				continue
			}
			if l := walk(dep, visited); l > maxDep {
				maxDep = l
			}
		}
		layers[role] = maxDep + 1
		return layers[role]
	}

	for _, step := range steps {
		walk(step.Role, make(map[string]bool))
	}
	return layers
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
