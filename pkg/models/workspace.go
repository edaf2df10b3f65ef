package models

import "time"

// Workspace is the unit of persistence: a named canvas holding nodes
// and the connectors between them. The editor owns node/connector
// lifecycle; the engine reads the graph and writes back schedule
// next/last run times.
type Workspace struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"    validate:"required,min=1"`
	Version    string       `json:"version"`
	Nodes      []*Node      `json:"nodes"`
	Connectors []*Connector `json:"connectors"`
	Owner      string       `json:"owner,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workspace) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// GroupNodes returns all group nodes in workspace order.
func (w *Workspace) GroupNodes() []*Node {
	var groups []*Node

	for _, node := range w.Nodes {
		if node.IsGroup() {
			groups = append(groups, node)
		}
	}

	return groups
}
