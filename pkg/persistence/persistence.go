// Package persistence provides the storage abstraction for canvas
// workspaces. The engine reads nodes and connectors through it and
// writes back schedule next/last run times; everything else about a
// workspace is owned by the editor.
package persistence

import (
	"context"

	"github.com/arkhamlabs/arkham/pkg/models"
)

type Persistence interface {
	Workspaces(ctx context.Context) ([]*models.Workspace, error)
	SaveWorkspace(ctx context.Context, workspace *models.Workspace) error
	WorkspaceByID(ctx context.Context, id string) (*models.Workspace, error)
	DeleteWorkspace(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
