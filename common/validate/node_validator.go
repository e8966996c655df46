package validate

import (
	"fmt"
	"regexp"
)

var nodeIDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]{2,99}$`)

// reservedNodeIDs may never be assigned to a workflow-authored node: the
// data model's forbidden names, plus the IDs reserved for engine-internal
// synthetic nodes (trigger injection, terminal aggregation).
var reservedNodeIDs = map[string]bool{
	"start":       true,
	"end":         true,
	"input":       true,
	"output":      true,
	"context":     true,
	"workflow":    true,
	"execution":   true,
	"node":        true,
	"connection":  true,
	"__start__": true,
	"__end__":   true,
	"__trigger__": true,
}

// NodeValidator checks node IDs and connection maps for the structural
// constraints in the data model: ID format, reserved names, uniqueness, and
// that every connection references a node that exists in the workflow.
type NodeValidator struct{}

// NewNodeValidator creates a node validator.
func NewNodeValidator() *NodeValidator {
	return &NodeValidator{}
}

// ValidateNodeID checks the §3 node ID format: ^[A-Za-z_][A-Za-z0-9_-]{2,99}$,
// and rejects reserved names.
func (v *NodeValidator) ValidateNodeID(id string) error {
	if !nodeIDPattern.MatchString(id) {
		return fmt.Errorf("node id %q does not match required pattern %s", id, nodeIDPattern.String())
	}
	if reservedNodeIDs[id] {
		return fmt.Errorf("node id %q is reserved", id)
	}
	return nil
}

// ValidateNodeIDs validates every ID in a set of node IDs and rejects
// duplicates.
func (v *NodeValidator) ValidateNodeIDs(ids []string) error {
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		if err := v.ValidateNodeID(id); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if seen[id] {
			return fmt.Errorf("node %d: duplicate node id %q", i, id)
		}
		seen[id] = true
	}
	return nil
}

// ValidateConnections checks that every source and target referenced by a
// connections map names a node that exists in nodeIDs, where connections maps
// a source node id to a list of (target node id, connection type) pairs.
func (v *NodeValidator) ValidateConnections(nodeIDs []string, connections map[string][]ConnectionRef) error {
	known := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		known[id] = true
	}

	for source, refs := range connections {
		if !known[source] {
			return fmt.Errorf("connection source %q does not reference a known node", source)
		}
		for _, ref := range refs {
			if !known[ref.TargetNodeID] {
				return fmt.Errorf("connection %s -> %s: target node does not exist", source, ref.TargetNodeID)
			}
			if ref.ConnectionType == "" {
				return fmt.Errorf("connection %s -> %s: connection_type is required", source, ref.TargetNodeID)
			}
		}
	}
	return nil
}

// ConnectionRef is the minimal shape ValidateConnections needs from a
// workflow connections map entry.
type ConnectionRef struct {
	TargetNodeID   string
	ConnectionType string
}
