// Package file provides file-based persistence for workspaces: one
// JSON document per workspace under the root directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/arkhamlabs/arkham/pkg/models"
	"github.com/arkhamlabs/arkham/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root string
}

// NewPersistence creates a file persistence rooted at the given
// directory. A "file://" prefix is stripped.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

// Close performs any necessary cleanup. Nothing to do for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Workspaces returns every workspace stored under the root.
func (fp *Persistence) Workspaces(ctx context.Context) ([]*models.Workspace, error) {
	dir := path.Join(fp.root, "workspaces")

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.Workspace{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace files: %w", err)
	}

	workspaces := make([]*models.Workspace, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workspaceID := file[:len(file)-5] // Remove .json extension

		workspace, err := fp.WorkspaceByID(ctx, workspaceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load workspace %s: %w", workspaceID, err)
		}

		workspaces = append(workspaces, workspace)
	}

	return workspaces, nil
}

// WorkspaceByID retrieves a workspace by its ID.
func (fp *Persistence) WorkspaceByID(_ context.Context, id string) (*models.Workspace, error) {
	filePath := filepath.Clean(path.Join(fp.root, "workspaces", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkspaceError("GetByID", id, persistence.ErrWorkspaceNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workspace %s: %w", id, err)
	}

	var workspace models.Workspace

	err = json.Unmarshal(body, &workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workspace %s: %w", id, err)
	}

	return &workspace, nil
}

// SaveWorkspace writes a workspace to the file system.
func (fp *Persistence) SaveWorkspace(_ context.Context, workspace *models.Workspace) error {
	err := os.MkdirAll(path.Join(fp.root, "workspaces"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create workspaces directory: %w", err)
	}

	now := time.Now().UTC()
	if workspace.CreatedAt.IsZero() {
		workspace.CreatedAt = now
	}

	workspace.UpdatedAt = now

	data, err := json.MarshalIndent(workspace, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workspace %s: %w", workspace.ID, err)
	}

	filePath := path.Join(fp.root, "workspaces", workspace.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// DeleteWorkspace removes a workspace by its ID.
func (fp *Persistence) DeleteWorkspace(_ context.Context, id string) error {
	filePath := path.Join(fp.root, "workspaces", id+".json")

	err := os.Remove(filePath)

	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete workspace %s: %w", id, err)
	}

	return nil
}
