// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides request and response types for the server.
//
// Request types carry go-playground/validator tags plus the custom rules
// registered here, and expose a Validate method handlers call after JSON
// binding. Responses are plain structs; graph and experiment bodies reuse
// the domain types directly since their JSON tags are the wire format.
package datatypes

import (
	"github.com/go-playground/validator/v10"

	"github.com/themariolinml/Pixel-Groove/services/engine/graph"
)

const (
	// MaxCanvasMemoryBytes bounds canvas memory and briefs accepted over
	// HTTP. Longer context is clipped at execution time anyway; the cap
	// stops pathological payloads at the door.
	MaxCanvasMemoryBytes = 64 * 1024

	// MaxLabelLength bounds graph, node, and experiment display names.
	MaxLabelLength = 200
)

// validate is the shared validator instance, initialized in init() with
// the custom rules below.
var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("nodetype", validateNodeType)
	_ = validate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateNodeType accepts only the known node types.
func validateNodeType(fl validator.FieldLevel) bool {
	return graph.NodeType(fl.Field().String()).IsValid()
}

// validateMaxBytes checks byte length, not rune count, so multi-byte
// payloads cannot dodge the cap.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxCanvasMemoryBytes
}

// MessageResponse is the generic acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the generic error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
