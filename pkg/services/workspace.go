package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arkhamlabs/arkham/pkg/models"
	"github.com/arkhamlabs/arkham/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrWorkspaceNotFound is returned when a workspace is not found.
var ErrWorkspaceNotFound = persistence.ErrWorkspaceNotFound

// Workspace provides workspace CRUD and schedule editing on top of the
// persistence layer.
type Workspace struct {
	persistence persistence.Persistence
	validator   *validator.Validate
}

// NewWorkspace creates a new workspace service.
func NewWorkspace(store persistence.Persistence) *Workspace {
	return &Workspace{
		persistence: store,
		validator:   validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workspace) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List retrieves all workspaces.
func (w *Workspace) List(ctx context.Context) ([]*models.Workspace, error) {
	workspaces, err := w.persistence.Workspaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	return workspaces, nil
}

// FetchByID retrieves a workspace by its ID.
func (w *Workspace) FetchByID(ctx context.Context, id string) (*models.Workspace, error) {
	workspace, err := w.persistence.WorkspaceByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workspace == nil {
		return nil, ErrWorkspaceNotFound
	}

	return workspace, nil
}

// Create adds a new workspace to the repository.
func (w *Workspace) Create(ctx context.Context, workspace *models.Workspace) (*models.Workspace, error) {
	if err := w.validate(workspace); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workspace.ID = uuid.New().String()
	workspace.CreatedAt = now
	workspace.UpdatedAt = now

	if err := w.persistence.SaveWorkspace(ctx, workspace); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	return workspace, nil
}

// Update modifies an existing workspace by its ID.
func (w *Workspace) Update(
	ctx context.Context,
	workspaceID string,
	workspace *models.Workspace,
) (*models.Workspace, error) {
	if err := w.validate(workspace); err != nil {
		return nil, err
	}

	existing, err := w.FetchByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	workspace.ID = workspaceID
	workspace.CreatedAt = existing.CreatedAt
	workspace.UpdatedAt = time.Now().UTC()

	if err := w.persistence.SaveWorkspace(ctx, workspace); err != nil {
		return nil, fmt.Errorf("failed to update workspace: %w", err)
	}

	return workspace, nil
}

// Delete removes a workspace by its ID.
func (w *Workspace) Delete(ctx context.Context, workspaceID string) error {
	if _, err := w.FetchByID(ctx, workspaceID); err != nil {
		return err
	}

	if err := w.persistence.DeleteWorkspace(ctx, workspaceID); err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	return nil
}

// UpdateSchedule replaces the schedule on a group node and persists the
// workspace. A nil schedule detaches any existing one. Returns the
// updated workspace and node.
func (w *Workspace) UpdateSchedule(
	ctx context.Context,
	workspaceID, nodeID string,
	schedule *models.Schedule,
) (*models.Workspace, *models.Node, error) {
	workspace, err := w.FetchByID(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}

	node := workspace.NodeByID(nodeID)
	if node == nil {
		return nil, nil, persistence.NewWorkspaceError("UpdateSchedule", workspaceID, persistence.ErrNodeNotFound)
	}

	if schedule != nil {
		if !node.IsGroup() {
			return nil, nil, ErrScheduleNotAllowed
		}

		if err := w.validator.Struct(schedule); err != nil {
			return nil, nil, NewValidationError(
				"UpdateSchedule", "INVALID_SCHEDULE", err.Error(), ErrInvalidScheduleData)
		}

		if err := schedule.Validate(); err != nil {
			return nil, nil, NewValidationError(
				"UpdateSchedule", "INVALID_SCHEDULE", err.Error(), ErrInvalidScheduleData)
		}

		// Preserve run bookkeeping across edits.
		if node.Schedule != nil {
			schedule.LastRun = node.Schedule.LastRun
		}
	}

	node.Schedule = schedule
	workspace.UpdatedAt = time.Now().UTC()

	if err := w.persistence.SaveWorkspace(ctx, workspace); err != nil {
		return nil, nil, fmt.Errorf("failed to save schedule: %w", err)
	}

	return workspace, node, nil
}

// SaveRunState persists engine-written schedule fields (next/last run
// times) without the full update validation pass.
func (w *Workspace) SaveRunState(ctx context.Context, workspace *models.Workspace) error {
	if err := w.persistence.SaveWorkspace(ctx, workspace); err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}

	return nil
}

func (w *Workspace) validate(workspace *models.Workspace) error {
	if workspace == nil {
		return ErrWorkspaceNil
	}

	if strings.TrimSpace(workspace.Name) == "" {
		return ErrWorkspaceNameRequired
	}

	return nil
}
