// Package web provides the REST API for workspace management and run
// orchestration.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/arkhamlabs/arkham/pkg/execution"
	"github.com/arkhamlabs/arkham/pkg/models"
	"github.com/arkhamlabs/arkham/pkg/persistence"
	"github.com/arkhamlabs/arkham/pkg/schedule"
	"github.com/arkhamlabs/arkham/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workspaceService *services.Workspace
	orchestrator     *execution.Orchestrator
	engine           *schedule.Engine
	validator        *validator.Validate
	logger           *slog.Logger
}

func NewAPIHandlers(
	workspaceService *services.Workspace,
	orchestrator *execution.Orchestrator,
	engine *schedule.Engine,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		workspaceService: workspaceService,
		orchestrator:     orchestrator,
		engine:           engine,
		validator:        validator,
		logger:           logger.With("module", "web"),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workspaceService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Arkham engine is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Arkham engine is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkspaces(c fiber.Ctx) error {
	workspaces, err := h.workspaceService.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workspaces":  workspaces,
		"total_count": len(workspaces),
	})
}

func (h *APIHandlers) GetWorkspace(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workspace ID is required")
	}

	workspace, err := h.workspaceService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workspace)
}

func (h *APIHandlers) CreateWorkspace(c fiber.Ctx) error {
	var req CreateWorkspaceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workspace := &models.Workspace{
		Name:       req.Name,
		Owner:      req.Owner,
		Nodes:      []*models.Node{},
		Connectors: []*models.Connector{},
	}

	created, err := h.workspaceService.Create(c.Context(), workspace)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkspace(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workspace ID is required")
	}

	var req UpdateWorkspaceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workspaceService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Nodes != nil {
		existing.Nodes = req.Nodes
	}

	if req.Connectors != nil {
		existing.Connectors = req.Connectors
	}

	updated, err := h.workspaceService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkspace(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workspace ID is required")
	}

	if err := h.workspaceService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	h.engine.Stop(c.Context(), id)

	return c.SendStatus(fiber.StatusNoContent)
}

// GetStatus returns the live run registry snapshot the canvas polls to
// render pulsing nodes and glowing connectors.
func (h *APIHandlers) GetStatus(c fiber.Ctx) error {
	return c.JSON(h.orchestrator.Registry().Snapshot())
}

// RunNode starts a single node (or, for a group node, the whole group)
// asynchronously and acknowledges with 202.
func (h *APIHandlers) RunNode(c fiber.Ctx) error {
	workspace, nodeID, err := h.fetchTarget(c, "nodeId")
	if workspace == nil {
		return err
	}

	node := workspace.NodeByID(nodeID)
	if node == nil {
		return notFound(c, "node_not_found", "node not found")
	}

	if node.IsGroup() && h.orchestrator.Registry().IsGroupRunning(nodeID) {
		return conflict(c, "group is already running")
	}

	go func() {
		if err := h.orchestrator.RunNode(context.Background(), workspace, nodeID); err != nil {
			h.logRunError("node", workspace.ID, nodeID, err)
		}
	}()

	return accepted(c, workspace.ID, nodeID)
}

// StopNode cancels a standalone node run (or the group run, for a
// group node).
func (h *APIHandlers) StopNode(c fiber.Ctx) error {
	workspace, nodeID, err := h.fetchTarget(c, "nodeId")
	if workspace == nil {
		return err
	}

	h.orchestrator.StopNode(c.Context(), workspace, nodeID)

	return c.JSON(RunAcceptedResponse{
		WorkspaceID: workspace.ID,
		TargetID:    nodeID,
		Status:      "stopped",
	})
}

// RunGroup starts a group run asynchronously.
func (h *APIHandlers) RunGroup(c fiber.Ctx) error {
	workspace, groupID, err := h.fetchTarget(c, "groupId")
	if workspace == nil {
		return err
	}

	group := workspace.NodeByID(groupID)
	if group == nil {
		return notFound(c, "node_not_found", "group not found")
	}

	if !group.IsGroup() {
		return badRequest(c, "node is not a group")
	}

	if h.orchestrator.Registry().IsGroupRunning(groupID) {
		return conflict(c, "group is already running")
	}

	go func() {
		if err := h.orchestrator.RunGroup(context.Background(), workspace, groupID); err != nil {
			h.logRunError("group", workspace.ID, groupID, err)
		}
	}()

	return accepted(c, workspace.ID, groupID)
}

// StopGroup cancels an in-flight group run.
func (h *APIHandlers) StopGroup(c fiber.Ctx) error {
	workspace, groupID, err := h.fetchTarget(c, "groupId")
	if workspace == nil {
		return err
	}

	h.orchestrator.StopGroup(c.Context(), workspace, groupID)

	return c.JSON(RunAcceptedResponse{
		WorkspaceID: workspace.ID,
		TargetID:    groupID,
		Status:      "stopped",
	})
}

// RunAll starts the sequential run of every group in the workspace.
func (h *APIHandlers) RunAll(c fiber.Ctx) error {
	workspace, err := h.fetchWorkspace(c)
	if workspace == nil {
		return err
	}

	if h.orchestrator.Registry().IsGlobalRunning() {
		return conflict(c, "a run-all is already in progress")
	}

	go func() {
		err := h.orchestrator.RunAll(context.Background(), workspace)
		if err != nil && !errors.Is(err, context.Canceled) {
			h.logRunError("run-all", workspace.ID, "", err)
		}
	}()

	return accepted(c, workspace.ID, "")
}

// StopAll cancels everything in flight for the workspace.
func (h *APIHandlers) StopAll(c fiber.Ctx) error {
	workspace, err := h.fetchWorkspace(c)
	if workspace == nil {
		return err
	}

	h.orchestrator.StopAll(c.Context(), workspace)

	return c.JSON(RunAcceptedResponse{
		WorkspaceID: workspace.ID,
		Status:      "stopped",
	})
}

// UpdateSchedule replaces a group node's schedule and re-arms its
// timer task to match.
func (h *APIHandlers) UpdateSchedule(c fiber.Ctx) error {
	workspaceID := c.Params("id")
	nodeID := c.Params("nodeId")

	if workspaceID == "" || nodeID == "" {
		return badRequest(c, "Workspace ID and node ID are required")
	}

	var req models.Schedule
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workspace, node, err := h.workspaceService.UpdateSchedule(c.Context(), workspaceID, nodeID, &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := h.engine.Reconfigure(c.Context(), workspace, node); err != nil {
		return internalError(c, err)
	}

	// Arming computed the next run time; store it so a reloaded
	// workspace exposes it without waiting for a fire.
	if err := h.workspaceService.SaveRunState(c.Context(), workspace); err != nil {
		return internalError(c, err)
	}

	return c.JSON(node.Schedule)
}

// DeleteSchedule detaches the node's schedule and disarms its timer.
func (h *APIHandlers) DeleteSchedule(c fiber.Ctx) error {
	workspaceID := c.Params("id")
	nodeID := c.Params("nodeId")

	if workspaceID == "" || nodeID == "" {
		return badRequest(c, "Workspace ID and node ID are required")
	}

	_, _, err := h.workspaceService.UpdateSchedule(c.Context(), workspaceID, nodeID, nil)
	if err != nil {
		return handleServiceError(c, err)
	}

	h.engine.Disarm(c.Context(), workspaceID, nodeID)

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) fetchWorkspace(c fiber.Ctx) (*models.Workspace, error) {
	id := c.Params("id")
	if id == "" {
		return nil, badRequest(c, "Workspace ID is required")
	}

	workspace, err := h.workspaceService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsWorkspaceNotFound(err) {
			return nil, notFound(c, "workspace_not_found", "workspace not found")
		}

		return nil, internalError(c, err)
	}

	return workspace, nil
}

func (h *APIHandlers) fetchTarget(c fiber.Ctx, param string) (*models.Workspace, string, error) {
	targetID := c.Params(param)
	if targetID == "" {
		return nil, "", badRequest(c, "Target ID is required")
	}

	workspace, err := h.fetchWorkspace(c)
	if err != nil {
		return nil, "", err
	}

	return workspace, targetID, nil
}

func (h *APIHandlers) logRunError(kind, workspaceID, targetID string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	h.logger.Error("Run failed",
		"kind", kind, "workspace_id", workspaceID, "target_id", targetID, "error", err)
}

func accepted(c fiber.Ctx, workspaceID, targetID string) error {
	return c.Status(fiber.StatusAccepted).JSON(RunAcceptedResponse{
		WorkspaceID: workspaceID,
		TargetID:    targetID,
		Status:      "started",
	})
}
