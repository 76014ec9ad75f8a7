// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "fmt"

// GraphNotFoundError reports a lookup of an unknown graph ID.
type GraphNotFoundError struct {
	GraphID string
}

func (e *GraphNotFoundError) Error() string {
	return fmt.Sprintf("graph %s not found", e.GraphID)
}

// NodeNotFoundError reports a lookup of an unknown node within a graph.
type NodeNotFoundError struct {
	GraphID string
	NodeID  string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node %s not found in graph %s", e.NodeID, e.GraphID)
}

// EdgeNotFoundError reports a lookup of an unknown edge within a graph.
type EdgeNotFoundError struct {
	GraphID string
	EdgeID  string
}

func (e *EdgeNotFoundError) Error() string {
	return fmt.Sprintf("edge %s not found in graph %s", e.EdgeID, e.GraphID)
}

// PortNotFoundError reports an edge endpoint referencing a missing port.
type PortNotFoundError struct {
	NodeID string
	PortID string
}

func (e *PortNotFoundError) Error() string {
	return fmt.Sprintf("port %s not found on node %s", e.PortID, e.NodeID)
}

// PortIncompatibleError reports an edge whose endpoint types cannot connect.
type PortIncompatibleError struct {
	FromPortType PortType
	ToPortType   PortType
}

func (e *PortIncompatibleError) Error() string {
	return fmt.Sprintf("incompatible port types: %s -> %s", e.FromPortType, e.ToPortType)
}

// CycleDetectedError reports an edge insertion that would close a directed
// cycle.
type CycleDetectedError struct {
	FromNodeID string
	ToNodeID   string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("edge %s -> %s would create a cycle", e.FromNodeID, e.ToNodeID)
}

// ExecutionError wraps a failure raised while executing a node.
type ExecutionError struct {
	GraphID string
	NodeID  string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed for node %s in graph %s: %v", e.NodeID, e.GraphID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
