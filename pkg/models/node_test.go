package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNode_GroupConfig(t *testing.T) {
	node := &Node{
		ID:   "group-1",
		Type: NodeTypeGroup,
		Config: map[string]any{
			"width":  600.0,
			"height": 450.0,
			"label":  "Ingest",
			"color":  "blue",
		},
	}

	cfg := node.GroupConfig()
	assert.InDelta(t, 600.0, cfg.Width, 0.001)
	assert.InDelta(t, 450.0, cfg.Height, 0.001)
	assert.Equal(t, "Ingest", cfg.Label)
}

func TestNode_GroupConfigDefaults(t *testing.T) {
	node := &Node{ID: "group-1", Type: NodeTypeGroup}

	cfg := node.GroupConfig()
	assert.InDelta(t, 400.0, cfg.Width, 0.001)
	assert.InDelta(t, 300.0, cfg.Height, 0.001)
}

func TestNode_GroupConfigRejectsUndersize(t *testing.T) {
	node := &Node{
		ID:   "group-1",
		Type: NodeTypeGroup,
		Config: map[string]any{
			"width":  10,
			"height": 5,
		},
	}

	// Below the resize minimum: fall back to defaults.
	cfg := node.GroupConfig()
	assert.InDelta(t, 400.0, cfg.Width, 0.001)
	assert.InDelta(t, 300.0, cfg.Height, 0.001)
}

func TestWorkspace_NodeByID(t *testing.T) {
	workspace := &Workspace{
		Nodes: []*Node{
			{ID: "a", Type: "filter"},
			{ID: "b", Type: NodeTypeGroup},
		},
	}

	assert.Equal(t, "a", workspace.NodeByID("a").ID)
	assert.Nil(t, workspace.NodeByID("missing"))
}

func TestWorkspace_GroupNodes(t *testing.T) {
	workspace := &Workspace{
		Nodes: []*Node{
			{ID: "a", Type: "filter"},
			{ID: "g1", Type: NodeTypeGroup},
			{ID: "g2", Type: NodeTypeGroup},
		},
	}

	groups := workspace.GroupNodes()
	assert.Len(t, groups, 2)
	assert.Equal(t, "g1", groups[0].ID)
	assert.Equal(t, "g2", groups[1].ID)
}
