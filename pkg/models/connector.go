package models

import "time"

// Connector is a directed edge between two nodes. Both endpoints
// should reference existing nodes, but the engine tolerates dangling
// references by skipping the connector during traversal.
type Connector struct {
	ID        string         `json:"id"        validate:"required"`
	FromNode  string         `json:"from_node" validate:"required"`
	ToNode    string         `json:"to_node"   validate:"required"`
	Mapping   map[string]any `json:"mapping,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
