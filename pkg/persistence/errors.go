package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkspaceNotFound indicates a workspace was not found by the given identifier.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrNodeNotFound indicates a node was not found by the given identifier.
	ErrNodeNotFound = errors.New("node not found")

	// ErrConnectorNotFound indicates a connector was not found by the given identifier.
	ErrConnectorNotFound = errors.New("connector not found")
)

// WorkspaceError wraps workspace-related errors with additional context.
type WorkspaceError struct {
	Op          string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkspaceID string // Workspace ID if applicable
	Err         error  // Underlying error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("%s operation failed for workspace %s: %v", e.Op, e.WorkspaceID, e.Err)
}

func (e *WorkspaceError) Unwrap() error {
	return e.Err
}

func (e *WorkspaceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkspaceError creates a new workspace error with context.
func NewWorkspaceError(op, workspaceID string, err error) *WorkspaceError {
	return &WorkspaceError{
		Op:          op,
		WorkspaceID: workspaceID,
		Err:         err,
	}
}

// IsWorkspaceNotFound checks if an error indicates a workspace was not found.
func IsWorkspaceNotFound(err error) bool {
	return errors.Is(err, ErrWorkspaceNotFound)
}

// IsNodeNotFound checks if an error indicates a node was not found.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}
