package graph

import (
	"github.com/arkhamlabs/arkham/pkg/models"
)

// Size is a node's rendered width and height on the canvas.
type Size struct {
	Width  float64
	Height float64
}

// defaultSizes is the per-type rendered card size used for membership
// geometry. Types not listed use the standard card size.
var defaultSizes = map[models.NodeType]Size{
	"dataset": {Width: 200, Height: 120},
	"filter":  {Width: 200, Height: 120},
	"join":    {Width: 200, Height: 120},
	"if":      {Width: 200, Height: 120},
	"api":     {Width: 200, Height: 120},
	"enrich":  {Width: 200, Height: 120},
	"mapview": {Width: 280, Height: 200},
}

var standardSize = Size{Width: 200, Height: 120}

// DefaultSize returns the rendered size for a node. Group nodes take
// their size from the config blob; everything else uses the per-type
// table.
func DefaultSize(node *models.Node) Size {
	if node.IsGroup() {
		cfg := node.GroupConfig()

		return Size{Width: cfg.Width, Height: cfg.Height}
	}

	if size, ok := defaultSizes[node.Type]; ok {
		return size
	}

	return standardSize
}

// Center returns the geometric center of a node's rendered card.
func Center(node *models.Node) (float64, float64) {
	size := DefaultSize(node)

	return node.Position.X + size.Width/2, node.Position.Y + size.Height/2
}

// NodesInGroup returns the nodes whose geometric center lies within
// the group's bounding box. The group itself and other groups are
// excluded. Runs in O(n).
func NodesInGroup(group *models.Node, nodes []*models.Node) []*models.Node {
	cfg := group.GroupConfig()

	left := group.Position.X
	top := group.Position.Y
	right := left + cfg.Width
	bottom := top + cfg.Height

	var members []*models.Node

	for _, node := range nodes {
		if node.ID == group.ID || node.IsGroup() {
			continue
		}

		cx, cy := Center(node)
		if cx >= left && cx <= right && cy >= top && cy <= bottom {
			members = append(members, node)
		}
	}

	return members
}
