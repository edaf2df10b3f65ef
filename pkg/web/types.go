package web

import "github.com/arkhamlabs/arkham/pkg/models"

// CreateWorkspaceRequest is the payload for creating a workspace.
type CreateWorkspaceRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=255"`
	Owner string `json:"owner,omitempty"`
}

// UpdateWorkspaceRequest is the payload for a canvas save. Name is
// patched when present; nodes and connectors replace the stored graph
// when present.
type UpdateWorkspaceRequest struct {
	Name       *string             `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Nodes      []*models.Node      `json:"nodes,omitempty"`
	Connectors []*models.Connector `json:"connectors,omitempty"`
}

// RunAcceptedResponse acknowledges an asynchronous run request.
type RunAcceptedResponse struct {
	WorkspaceID string `json:"workspace_id"`
	TargetID    string `json:"target_id,omitempty"`
	Status      string `json:"status"`
}
