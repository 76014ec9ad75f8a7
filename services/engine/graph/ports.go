// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "fmt"

// PortType is the data type that can flow through a port.
type PortType string

const (
	PortTypeImage PortType = "image"
	PortTypeVideo PortType = "video"
	PortTypeAudio PortType = "audio"
	PortTypeText  PortType = "text"
	PortTypeAny   PortType = "any"
)

// IsValid reports whether t is one of the known port types.
func (t PortType) IsValid() bool {
	switch t {
	case PortTypeImage, PortTypeVideo, PortTypeAudio, PortTypeText, PortTypeAny:
		return true
	}
	return false
}

// PortDirection marks a port as an input or an output slot.
type PortDirection string

const (
	PortDirectionInput  PortDirection = "input"
	PortDirectionOutput PortDirection = "output"
)

// Port is a typed connection point on a node.
//
// Port IDs are stable and derived from the owning node:
// "{node_id}_input_{name}" and "{node_id}_output_{name}".
type Port struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	PortType    PortType      `json:"port_type"`
	Direction   PortDirection `json:"direction"`
	Required    bool          `json:"required"`
	Description string        `json:"description,omitempty"`
}

// CompatibleWith reports whether an edge may connect p to other.
//
// Two ports are compatible iff their directions differ and either side is
// "any" or their types match exactly.
func (p *Port) CompatibleWith(other *Port) bool {
	if p.Direction == other.Direction {
		return false
	}
	if p.PortType == PortTypeAny || other.PortType == PortTypeAny {
		return true
	}
	return p.PortType == other.PortType
}

// InputPortID returns the deterministic ID for a named input port of a node.
func InputPortID(nodeID, name string) string {
	return fmt.Sprintf("%s_input_%s", nodeID, name)
}

// OutputPortID returns the deterministic ID for a named output port of a node.
func OutputPortID(nodeID, name string) string {
	return fmt.Sprintf("%s_output_%s", nodeID, name)
}
