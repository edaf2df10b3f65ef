package execution

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/arkhamlabs/arkham/pkg/eventbus"
	"github.com/arkhamlabs/arkham/pkg/events"
	"github.com/arkhamlabs/arkham/pkg/graph"
	"github.com/arkhamlabs/arkham/pkg/models"
	"github.com/arkhamlabs/arkham/pkg/otelhelper"
	"github.com/arkhamlabs/arkham/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultGroupPause throttles run-all between groups; concurrent group
// execution is deliberately avoided.
const DefaultGroupPause = 500 * time.Millisecond

// Orchestrator is the command surface of the engine: run/stop a single
// node, a group, or every group in sequence. It owns the per-run
// cancellation handles; the registry and walker do the bookkeeping.
type Orchestrator struct {
	registry    *Registry
	walker      *Walker
	bus         eventbus.EventBus
	persistence persistence.Persistence
	logger      *slog.Logger
	tracer      trace.Tracer

	NodeRunDuration time.Duration
	GroupPause      time.Duration

	mu           sync.Mutex
	nodeCancels  map[string]context.CancelFunc
	groupCancels map[string]context.CancelFunc
	runAllCancel context.CancelFunc
}

func NewOrchestrator(
	registry *Registry,
	walker *Walker,
	bus eventbus.EventBus,
	store persistence.Persistence,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:        registry,
		walker:          walker,
		bus:             bus,
		persistence:     store,
		logger:          logger.With("module", "orchestrator"),
		tracer:          otel.Tracer("arkham-engine"),
		NodeRunDuration: DefaultNodeDelay,
		GroupPause:      DefaultGroupPause,
		nodeCancels:     make(map[string]context.CancelFunc),
		groupCancels:    make(map[string]context.CancelFunc),
	}
}

// Registry exposes the run registry for the read side.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// RunNode simulates one node's execution. Group nodes delegate to
// RunGroup. The node's schedule lastRun is updated on completion.
func (o *Orchestrator) RunNode(ctx context.Context, workspace *models.Workspace, nodeID string) error {
	node := workspace.NodeByID(nodeID)
	if node == nil {
		return ErrNodeNotFound
	}

	if node.IsGroup() {
		return o.RunGroup(ctx, workspace, nodeID)
	}

	runCtx, err := o.beginNodeRun(ctx, nodeID)
	if err != nil {
		return err
	}
	defer o.endNodeRun(nodeID)

	runID := newRunID()
	logger := o.logger.With("workspace_id", workspace.ID, "node_id", nodeID, "run_id", runID)
	logger.Info("Running node")

	ctx, span := otelhelper.StartSpan(runCtx, o.tracer, "orchestrator.run_node",
		attribute.String(otelhelper.WorkspaceIDKey, workspace.ID),
		attribute.String(otelhelper.NodeIDKey, nodeID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.String(otelhelper.RunIDKey, runID),
	)
	defer span.End()

	o.registry.MarkNodeRunning(nodeID)
	o.publish(ctx, nodeID, events.NodeStarted{
		BaseEvent: o.baseEvent(events.NodeStartedEvent, workspace.ID),
		NodeID:    nodeID,
		RunID:     runID,
	})

	startedAt := time.Now().UTC()

	if err := o.walker.pause(ctx, o.NodeRunDuration); err != nil {
		o.registry.UnmarkNodeRunning(nodeID)

		return err
	}

	o.registry.UnmarkNodeRunning(nodeID)
	o.publish(ctx, nodeID, events.NodeFinished{
		BaseEvent: o.baseEvent(events.NodeFinishedEvent, workspace.ID),
		NodeID:    nodeID,
		RunID:     runID,
		Duration:  time.Since(startedAt),
	})

	o.touchLastRun(ctx, workspace, node)

	return nil
}

// StopNode cancels a standalone node run. Group nodes delegate to
// StopGroup.
func (o *Orchestrator) StopNode(ctx context.Context, workspace *models.Workspace, nodeID string) {
	if node := workspace.NodeByID(nodeID); node != nil && node.IsGroup() {
		o.StopGroup(ctx, workspace, nodeID)

		return
	}

	o.mu.Lock()
	cancel := o.nodeCancels[nodeID]
	delete(o.nodeCancels, nodeID)
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	o.registry.UnmarkNodeRunning(nodeID)
	o.logger.Info("Stopped node", "workspace_id", workspace.ID, "node_id", nodeID)
}

// RunGroup resolves the group's members geometrically and walks their
// dependency graph. Blocks until the walk completes or is stopped.
func (o *Orchestrator) RunGroup(ctx context.Context, workspace *models.Workspace, groupID string) error {
	group := workspace.NodeByID(groupID)
	if group == nil {
		return ErrNodeNotFound
	}

	if !group.IsGroup() {
		return ErrNotAGroup
	}

	runCtx, err := o.beginGroupRun(ctx, groupID)
	if err != nil {
		return err
	}

	runID := newRunID()
	logger := o.logger.With("workspace_id", workspace.ID, "group_id", groupID, "run_id", runID)

	runCtx, span := otelhelper.StartSpan(runCtx, o.tracer, "orchestrator.run_group",
		attribute.String(otelhelper.WorkspaceIDKey, workspace.ID),
		attribute.String(otelhelper.GroupIDKey, groupID),
		attribute.String(otelhelper.RunIDKey, runID),
	)
	defer span.End()

	subset := graph.NodesInGroup(group, workspace.Nodes)
	logger.Info("Running group", "nodes", len(subset))

	o.registry.MarkGroupRunning(groupID)
	o.publish(runCtx, groupID, events.GroupStarted{
		BaseEvent: o.baseEvent(events.GroupStartedEvent, workspace.ID),
		GroupID:   groupID,
		RunID:     runID,
		NodeCount: len(subset),
	})

	startedAt := time.Now().UTC()
	walkErr := o.walker.Execute(runCtx, workspace.ID, groupID, runID, subset, workspace.Connectors)

	o.endGroupRun(groupID)

	if walkErr != nil {
		// StopGroup/StopAll already cleared the registry; the walk
		// simply reports it aborted.
		logger.Info("Group run stopped", "error", walkErr)
		otelhelper.SetError(span, walkErr)

		return walkErr
	}

	o.registry.UnmarkGroupRunning(groupID)
	o.publish(ctx, groupID, events.GroupFinished{
		BaseEvent: o.baseEvent(events.GroupFinishedEvent, workspace.ID),
		GroupID:   groupID,
		RunID:     runID,
		Duration:  time.Since(startedAt),
	})

	o.touchLastRun(ctx, workspace, group)
	logger.Info("Group run finished")

	return nil
}

// StopGroup cancels the group's in-flight walk and clears the
// registry entries belonging to that group's own subset. The clear is
// scoped so concurrently running groups are unaffected.
func (o *Orchestrator) StopGroup(ctx context.Context, workspace *models.Workspace, groupID string) {
	o.mu.Lock()
	cancel := o.groupCancels[groupID]
	delete(o.groupCancels, groupID)
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	o.registry.UnmarkGroupRunning(groupID)

	if group := workspace.NodeByID(groupID); group != nil && group.IsGroup() {
		subset := graph.NodesInGroup(group, workspace.Nodes)
		memberIDs := make(map[string]bool, len(subset))
		nodeIDs := make([]string, 0, len(subset))

		for _, node := range subset {
			memberIDs[node.ID] = true
			nodeIDs = append(nodeIDs, node.ID)
		}

		var connectorIDs []string

		for _, conn := range workspace.Connectors {
			if memberIDs[conn.FromNode] && memberIDs[conn.ToNode] {
				connectorIDs = append(connectorIDs, conn.ID)
			}
		}

		o.registry.ClearNodes(nodeIDs)
		o.registry.ClearConnectors(connectorIDs)
	}

	o.publish(ctx, groupID, events.GroupStopped{
		BaseEvent: o.baseEvent(events.GroupStoppedEvent, workspace.ID),
		GroupID:   groupID,
	})

	o.logger.Info("Stopped group", "workspace_id", workspace.ID, "group_id", groupID)
}

// RunAll executes every group in workspace order, one at a time, with
// a pause between groups. The global-running flag is the cooperative
// cancellation point checked before each group.
func (o *Orchestrator) RunAll(ctx context.Context, workspace *models.Workspace) error {
	o.mu.Lock()
	if o.runAllCancel != nil {
		o.mu.Unlock()

		return ErrRunAllAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.runAllCancel = cancel
	o.mu.Unlock()

	defer func() {
		cancel()

		o.mu.Lock()
		o.runAllCancel = nil
		o.mu.Unlock()

		o.registry.SetGlobalRunning(false)
	}()

	o.registry.SetGlobalRunning(true)

	runID := newRunID()
	groups := workspace.GroupNodes()
	logger := o.logger.With("workspace_id", workspace.ID, "run_id", runID)
	logger.Info("Running all groups", "groups", len(groups))

	o.publish(runCtx, workspace.ID, events.RunAllStarted{
		BaseEvent:  o.baseEvent(events.RunAllStartedEvent, workspace.ID),
		RunID:      runID,
		GroupCount: len(groups),
	})

	startedAt := time.Now().UTC()

	for i, group := range groups {
		if !o.registry.IsGlobalRunning() || runCtx.Err() != nil {
			o.publish(ctx, workspace.ID, events.RunAllStopped{
				BaseEvent: o.baseEvent(events.RunAllStoppedEvent, workspace.ID),
				RunID:     runID,
			})

			return context.Canceled
		}

		err := o.RunGroup(runCtx, workspace, group.ID)

		switch {
		case errors.Is(err, ErrGroupAlreadyRunning):
			logger.Warn("Group already running, skipping", "group_id", group.ID)
		case errors.Is(err, context.Canceled):
			// A stop scoped to this one group cancels only its child
			// context; run-all carries on with the next group.
			if runCtx.Err() == nil {
				logger.Info("Group stopped mid run-all, continuing", "group_id", group.ID)

				continue
			}

			o.publish(ctx, workspace.ID, events.RunAllStopped{
				BaseEvent: o.baseEvent(events.RunAllStoppedEvent, workspace.ID),
				RunID:     runID,
			})

			return err
		case err != nil:
			return err
		}

		if i < len(groups)-1 {
			if err := o.walker.pause(runCtx, o.GroupPause); err != nil {
				return err
			}
		}
	}

	o.publish(ctx, workspace.ID, events.RunAllFinished{
		BaseEvent: o.baseEvent(events.RunAllFinishedEvent, workspace.ID),
		RunID:     runID,
		Duration:  time.Since(startedAt),
	})
	logger.Info("Run-all finished")

	return nil
}

// StopAll cancels everything in flight and empties the registry.
func (o *Orchestrator) StopAll(ctx context.Context, workspace *models.Workspace) {
	o.mu.Lock()
	if o.runAllCancel != nil {
		o.runAllCancel()
		o.runAllCancel = nil
	}

	for groupID, cancel := range o.groupCancels {
		cancel()
		delete(o.groupCancels, groupID)
	}

	for nodeID, cancel := range o.nodeCancels {
		cancel()
		delete(o.nodeCancels, nodeID)
	}
	o.mu.Unlock()

	o.registry.Reset()

	o.publish(ctx, workspace.ID, events.RunAllStopped{
		BaseEvent: o.baseEvent(events.RunAllStoppedEvent, workspace.ID),
	})

	o.logger.Info("Stopped all runs", "workspace_id", workspace.ID)
}

// beginNodeRun registers a cancellation handle for a standalone node
// run, rejecting re-entrant runs.
func (o *Orchestrator) beginNodeRun(ctx context.Context, nodeID string) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, running := o.nodeCancels[nodeID]; running {
		return nil, ErrNodeAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.nodeCancels[nodeID] = cancel

	return runCtx, nil
}

func (o *Orchestrator) endNodeRun(nodeID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cancel, ok := o.nodeCancels[nodeID]; ok {
		cancel()
		delete(o.nodeCancels, nodeID)
	}
}

// beginGroupRun registers a cancellation handle for the group,
// rejecting re-entrant runs.
func (o *Orchestrator) beginGroupRun(ctx context.Context, groupID string) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, running := o.groupCancels[groupID]; running {
		return nil, ErrGroupAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.groupCancels[groupID] = cancel

	return runCtx, nil
}

func (o *Orchestrator) endGroupRun(groupID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cancel, ok := o.groupCancels[groupID]; ok {
		cancel()
		delete(o.groupCancels, groupID)
	}
}

// touchLastRun records the completion time on the node's schedule and
// persists the workspace best-effort.
func (o *Orchestrator) touchLastRun(ctx context.Context, workspace *models.Workspace, node *models.Node) {
	if node.Schedule == nil {
		return
	}

	now := time.Now().UTC()
	node.Schedule.LastRun = &now

	if o.persistence == nil {
		return
	}

	if err := o.persistence.SaveWorkspace(ctx, workspace); err != nil {
		o.logger.Warn("Failed to persist last run time",
			"workspace_id", workspace.ID, "node_id", node.ID, "error", err)
	}
}

func (o *Orchestrator) baseEvent(eventType events.EventType, workspaceID string) events.BaseEvent {
	return events.BaseEvent{
		ID:          o.bus.GenerateID(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkspaceID: workspaceID,
	}
}

func (o *Orchestrator) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := o.bus.Publish(ctx, key, event); err != nil {
		o.logger.Warn("Failed to publish run event", "event_type", event.GetType(), "error", err)
	}
}

func newRunID() string {
	return "run-" + uuid.New().String()[:8]
}
