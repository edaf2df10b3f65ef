package execution

import "errors"

var (
	// ErrNodeNotFound indicates the command referenced a node id absent
	// from the workspace.
	ErrNodeNotFound = errors.New("node not found in workspace")

	// ErrNotAGroup indicates a group command targeted a non-group node.
	ErrNotAGroup = errors.New("node is not a group")

	// ErrNodeAlreadyRunning indicates a run was requested for a node
	// that is still executing.
	ErrNodeAlreadyRunning = errors.New("node is already running")

	// ErrGroupAlreadyRunning indicates a run was requested for a group
	// that is still executing.
	ErrGroupAlreadyRunning = errors.New("group is already running")

	// ErrRunAllAlreadyRunning indicates run-all was requested while a
	// previous run-all is still in progress.
	ErrRunAllAlreadyRunning = errors.New("run-all is already in progress")
)
