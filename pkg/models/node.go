// Package models defines the core domain models for canvas workspaces:
// nodes, connectors, groups and schedules.
package models

import "time"

// NodeType is the type tag of a node. The engine treats it as opaque
// except for NodeTypeGroup, which marks rectangular container nodes.
type NodeType string

const NodeTypeGroup NodeType = "group"

// Position locates a node on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a vertex on the canvas. Config is a type-specific blob owned
// by the editor; the engine only interprets the group variant (see
// GroupConfig) and the attached Schedule.
type Node struct {
	ID        string         `json:"id"                 validate:"required"`
	Type      NodeType       `json:"type"               validate:"required"`
	Config    map[string]any `json:"config,omitempty"`
	Inputs    []string       `json:"inputs,omitempty"`
	Outputs   []string       `json:"outputs,omitempty"`
	Position  Position       `json:"position"`
	Schedule  *Schedule      `json:"schedule,omitempty"`
	Owner     string         `json:"owner,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// IsGroup reports whether the node is a group container.
func (n *Node) IsGroup() bool {
	return n.Type == NodeTypeGroup
}

// GroupConfig is the typed view of a group node's config blob. Only
// the fields the engine needs are extracted; everything else in the
// blob is carried untouched by the editor.
type GroupConfig struct {
	Width  float64
	Height float64
	Label  string
}

// Group sizing bounds enforced by the editor's resize handle.
const (
	minGroupWidth      = 200
	minGroupHeight     = 150
	defaultGroupWidth  = 400
	defaultGroupHeight = 300
)

// GroupConfig extracts the group variant of the node's config blob.
// Missing or malformed fields fall back to the editor defaults.
func (n *Node) GroupConfig() GroupConfig {
	cfg := GroupConfig{
		Width:  defaultGroupWidth,
		Height: defaultGroupHeight,
	}

	if n.Config == nil {
		return cfg
	}

	if w, ok := toFloat(n.Config["width"]); ok && w >= minGroupWidth {
		cfg.Width = w
	}

	if h, ok := toFloat(n.Config["height"]); ok && h >= minGroupHeight {
		cfg.Height = h
	}

	if label, ok := n.Config["label"].(string); ok {
		cfg.Label = label
	}

	return cfg
}

// toFloat converts the numeric types JSON decoding may produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
