// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

// NodeType identifies which generative operation a node performs.
type NodeType string

const (
	NodeTypeGenerateText   NodeType = "generate_text"
	NodeTypeGenerateImage  NodeType = "generate_image"
	NodeTypeGenerateVideo  NodeType = "generate_video"
	NodeTypeGenerateSpeech NodeType = "generate_speech"
	NodeTypeGenerateMusic  NodeType = "generate_music"
	NodeTypeAnalyzeImage   NodeType = "analyze_image"
	NodeTypeTransformImage NodeType = "transform_image"
)

// AllNodeTypes lists every known node type in a fixed order.
var AllNodeTypes = []NodeType{
	NodeTypeGenerateText,
	NodeTypeGenerateImage,
	NodeTypeGenerateVideo,
	NodeTypeGenerateSpeech,
	NodeTypeGenerateMusic,
	NodeTypeAnalyzeImage,
	NodeTypeTransformImage,
}

// IsValid reports whether t is one of the known node types.
func (t NodeType) IsValid() bool {
	for _, known := range AllNodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// NodeStatus is the lifecycle state of a node.
type NodeStatus string

const (
	NodeStatusIdle      NodeStatus = "idle"
	NodeStatusQueued    NodeStatus = "queued"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
)

// Position is the node's location on the authoring canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type portSpec struct {
	name        string
	portType    PortType
	description string
}

// portSpecs fixes the input/output ports per node type. Every type accepts a
// single untyped "in" port and produces exactly one output named after its
// modality.
var portSpecs = map[NodeType]struct {
	inputs  []portSpec
	outputs []portSpec
}{
	NodeTypeGenerateText: {
		inputs:  []portSpec{{"in", PortTypeAny, "Input from upstream node"}},
		outputs: []portSpec{{"text", PortTypeText, "Generated text"}},
	},
	NodeTypeGenerateImage: {
		inputs:  []portSpec{{"in", PortTypeAny, "Input from upstream node"}},
		outputs: []portSpec{{"image", PortTypeImage, "Generated image"}},
	},
	NodeTypeGenerateVideo: {
		inputs:  []portSpec{{"in", PortTypeAny, "Input from upstream node"}},
		outputs: []portSpec{{"video", PortTypeVideo, "Generated video"}},
	},
	NodeTypeGenerateSpeech: {
		inputs:  []portSpec{{"in", PortTypeAny, "Input from upstream node"}},
		outputs: []portSpec{{"audio", PortTypeAudio, "Generated speech"}},
	},
	NodeTypeGenerateMusic: {
		inputs:  []portSpec{{"in", PortTypeAny, "Input from upstream node"}},
		outputs: []portSpec{{"audio", PortTypeAudio, "Generated music"}},
	},
	NodeTypeAnalyzeImage: {
		inputs:  []portSpec{{"in", PortTypeAny, "Input from upstream node"}},
		outputs: []portSpec{{"text", PortTypeText, "Image description"}},
	},
	NodeTypeTransformImage: {
		inputs:  []portSpec{{"in", PortTypeAny, "Input from upstream node"}},
		outputs: []portSpec{{"image", PortTypeImage, "Modified image"}},
	},
}

// Node is a processing unit with typed input/output ports.
//
// A node is created idle, becomes running on dispatch, completed (and
// not stale) on success, failed on error. The stale flag is raised whenever
// the node or an upstream node suffers a content-affecting change; a stale
// node is never served from cache by the executor.
type Node struct {
	ID                string         `json:"id"`
	Type              NodeType       `json:"type"`
	Label             string         `json:"label"`
	Params            map[string]any `json:"params"`
	Position          Position       `json:"position"`
	Provider          string         `json:"provider"`
	Status            NodeStatus     `json:"status"`
	InputPorts        []*Port        `json:"input_ports"`
	OutputPorts       []*Port        `json:"output_ports"`
	Result            *MediaResult   `json:"result,omitempty"`
	GenerationHistory []*MediaResult `json:"generation_history"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	Stale             bool           `json:"stale"`
}

// NewNode builds a node of the given type with its ports initialized from
// the fixed per-type spec.
func NewNode(id string, nodeType NodeType, label string, params map[string]any, pos Position) *Node {
	if params == nil {
		params = map[string]any{}
	}
	n := &Node{
		ID:       id,
		Type:     nodeType,
		Label:    label,
		Params:   params,
		Position: pos,
		Provider: "gemini",
		Status:   NodeStatusIdle,
	}
	n.initializePorts()
	return n
}

func (n *Node) initializePorts() {
	spec, ok := portSpecs[n.Type]
	if !ok {
		return
	}
	for _, in := range spec.inputs {
		n.InputPorts = append(n.InputPorts, &Port{
			ID:          InputPortID(n.ID, in.name),
			Name:        in.name,
			PortType:    in.portType,
			Direction:   PortDirectionInput,
			Required:    true,
			Description: in.description,
		})
	}
	for _, out := range spec.outputs {
		n.OutputPorts = append(n.OutputPorts, &Port{
			ID:          OutputPortID(n.ID, out.name),
			Name:        out.name,
			PortType:    out.portType,
			Direction:   PortDirectionOutput,
			Required:    true,
			Description: out.description,
		})
	}
}

// InputPort returns the input port with the given ID, or nil.
func (n *Node) InputPort(portID string) *Port {
	for _, p := range n.InputPorts {
		if p.ID == portID {
			return p
		}
	}
	return nil
}

// OutputPort returns the output port with the given ID, or nil.
func (n *Node) OutputPort(portID string) *Port {
	for _, p := range n.OutputPorts {
		if p.ID == portID {
			return p
		}
	}
	return nil
}

// AddGeneration records a successful generation: the result is appended to
// history, becomes the node's current result, and clears the stale flag.
func (n *Node) AddGeneration(result *MediaResult) {
	n.GenerationHistory = append(n.GenerationHistory, result)
	n.Result = result
	n.Status = NodeStatusCompleted
	n.ErrorMessage = ""
	n.Stale = false
}

// Reusable reports whether the node's cached result can stand in for a
// fresh execution: it completed before, still holds a result, and no
// upstream edit marked it stale. force overrides the cache entirely.
func (n *Node) Reusable(force bool) bool {
	return !force && !n.Stale && n.Status == NodeStatusCompleted && n.Result != nil
}

// Prompt returns the node's own prompt parameter, or "".
func (n *Node) Prompt() string {
	return n.StringParam("prompt", "")
}

// StringParam reads a string-typed param with a fallback default.
func (n *Node) StringParam(key, def string) string {
	if v, ok := n.Params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// BoolParam reads a bool-typed param with a fallback default.
func (n *Node) BoolParam(key string, def bool) bool {
	if v, ok := n.Params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// FloatParam reads a numeric param with a fallback default. JSON decoding
// produces float64 for all numbers, so int params arrive here too.
func (n *Node) FloatParam(key string, def float64) float64 {
	if v, ok := n.Params[key]; ok {
		switch x := v.(type) {
		case float64:
			return x
		case int:
			return float64(x)
		}
	}
	return def
}
