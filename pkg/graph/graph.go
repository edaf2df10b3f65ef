// Package graph provides a read-only view over workspace nodes and
// connectors: adjacency lookup, group membership and entry-node
// computation for the execution walker.
package graph

import (
	"github.com/arkhamlabs/arkham/pkg/models"
)

// Index is an adjacency view over a node set and its connectors.
// Connectors with a dangling endpoint are dropped at construction so
// traversal never has to re-check them.
type Index struct {
	nodes    map[string]*models.Node
	incoming map[string][]*models.Connector
	outgoing map[string][]*models.Connector
}

// NewIndex builds an Index over the given nodes. Connectors whose
// endpoints are not both in the node set are skipped.
func NewIndex(nodes []*models.Node, connectors []*models.Connector) *Index {
	ix := &Index{
		nodes:    make(map[string]*models.Node, len(nodes)),
		incoming: make(map[string][]*models.Connector),
		outgoing: make(map[string][]*models.Connector),
	}

	for _, node := range nodes {
		ix.nodes[node.ID] = node
	}

	for _, conn := range connectors {
		if _, ok := ix.nodes[conn.FromNode]; !ok {
			continue
		}

		if _, ok := ix.nodes[conn.ToNode]; !ok {
			continue
		}

		ix.outgoing[conn.FromNode] = append(ix.outgoing[conn.FromNode], conn)
		ix.incoming[conn.ToNode] = append(ix.incoming[conn.ToNode], conn)
	}

	return ix
}

// Node returns the node with the given id.
func (ix *Index) Node(id string) (*models.Node, bool) {
	node, ok := ix.nodes[id]

	return node, ok
}

// Incoming returns the connectors targeting the given node.
func (ix *Index) Incoming(id string) []*models.Connector {
	return ix.incoming[id]
}

// Outgoing returns the connectors leaving the given node.
func (ix *Index) Outgoing(id string) []*models.Connector {
	return ix.outgoing[id]
}

// Size returns the number of nodes in the index.
func (ix *Index) Size() int {
	return len(ix.nodes)
}

// EntryNodes returns the nodes with no incoming connector from within
// the index, preserving the order of subset. A fully cyclic subset
// yields no entry nodes; callers treat that as a no-op traversal.
func (ix *Index) EntryNodes(subset []*models.Node) []*models.Node {
	var entries []*models.Node

	for _, node := range subset {
		if len(ix.incoming[node.ID]) == 0 {
			entries = append(entries, node)
		}
	}

	return entries
}
