package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/arkhamlabs/arkham/pkg/eventbus"
	"github.com/arkhamlabs/arkham/pkg/events"
	"github.com/arkhamlabs/arkham/pkg/graph"
	"github.com/arkhamlabs/arkham/pkg/models"
)

// Simulated durations used for visual feedback. Connector activation
// is shown EdgeDelay before its target starts processing; a node stays
// "running" for NodeDelay.
const (
	DefaultEdgeDelay = 300 * time.Millisecond
	DefaultNodeDelay = 800 * time.Millisecond
)

// Walker traverses a group's induced subgraph depth-first, marking
// nodes and connectors in the registry with simulated timing. Each
// suspension point re-checks the run's context, so a stopped run
// aborts at the next resume instead of mutating state afterwards.
type Walker struct {
	registry *Registry
	bus      eventbus.EventBus
	logger   *slog.Logger

	EdgeDelay time.Duration
	NodeDelay time.Duration
}

func NewWalker(registry *Registry, bus eventbus.EventBus, logger *slog.Logger) *Walker {
	return &Walker{
		registry:  registry,
		bus:       bus,
		logger:    logger.With("module", "walker"),
		EdgeDelay: DefaultEdgeDelay,
		NodeDelay: DefaultNodeDelay,
	}
}

// walk carries the per-run state of one Execute call.
type walk struct {
	workspaceID string
	groupID     string
	runID       string
	index       *graph.Index
	visited     map[string]bool
}

// Execute walks the subset in dependency order. Connectors not fully
// inside the subset were already dropped by the index, so dangling or
// outward edges are skipped silently. Returns the context error if the
// run was cancelled mid-walk.
func (w *Walker) Execute(ctx context.Context, workspaceID, groupID, runID string, subset []*models.Node, connectors []*models.Connector) error {
	run := &walk{
		workspaceID: workspaceID,
		groupID:     groupID,
		runID:       runID,
		index:       graph.NewIndex(subset, connectors),
		visited:     make(map[string]bool, len(subset)),
	}

	entries := run.index.EntryNodes(subset)
	if len(entries) == 0 {
		// Fully cyclic subset: nothing to start from. Documented
		// degenerate case, not an error.
		w.logger.Info("No entry nodes in subset, skipping traversal",
			"group_id", groupID, "nodes", len(subset))

		return nil
	}

	// Entry branches execute one after another, not interleaved. The
	// editor warns about concurrent execution, so this stays serial.
	for _, entry := range entries {
		if err := w.visit(ctx, run, entry); err != nil {
			return err
		}
	}

	return nil
}

func (w *Walker) visit(ctx context.Context, run *walk, node *models.Node) error {
	// Check before marking: a cancellation landing between a parent's
	// resumed pause and this call must not leave the node marked
	// running with nobody left to unmark it.
	if err := ctx.Err(); err != nil {
		return err
	}

	if run.visited[node.ID] {
		return nil
	}

	run.visited[node.ID] = true

	w.registry.MarkNodeRunning(node.ID)

	startedAt := time.Now().UTC()
	w.publish(ctx, node.ID, events.NodeStarted{
		BaseEvent: w.baseEvent(events.NodeStartedEvent, run.workspaceID),
		NodeID:    node.ID,
		GroupID:   run.groupID,
		RunID:     run.runID,
	})

	// Animate each incoming connector before the node itself starts.
	// They stay active until the node's whole subtree is done.
	incoming := run.index.Incoming(node.ID)
	for _, conn := range incoming {
		w.registry.ActivateConnector(conn.ID)
		w.publish(ctx, conn.ID, events.ConnectorActivated{
			BaseEvent:   w.baseEvent(events.ConnectorActivatedEvent, run.workspaceID),
			ConnectorID: conn.ID,
			FromNode:    conn.FromNode,
			ToNode:      conn.ToNode,
			RunID:       run.runID,
		})

		if err := w.pause(ctx, w.EdgeDelay); err != nil {
			return err
		}
	}

	if err := w.pause(ctx, w.NodeDelay); err != nil {
		return err
	}

	// Sequential per branch: each child subtree completes before the
	// next sibling starts.
	for _, conn := range run.index.Outgoing(node.ID) {
		target, ok := run.index.Node(conn.ToNode)
		if !ok {
			continue
		}

		if err := w.visit(ctx, run, target); err != nil {
			return err
		}
	}

	w.registry.UnmarkNodeRunning(node.ID)
	w.publish(ctx, node.ID, events.NodeFinished{
		BaseEvent: w.baseEvent(events.NodeFinishedEvent, run.workspaceID),
		NodeID:    node.ID,
		GroupID:   run.groupID,
		RunID:     run.runID,
		Duration:  time.Since(startedAt),
	})

	for _, conn := range incoming {
		w.registry.DeactivateConnector(conn.ID)
		w.publish(ctx, conn.ID, events.ConnectorDeactivated{
			BaseEvent:   w.baseEvent(events.ConnectorDeactivatedEvent, run.workspaceID),
			ConnectorID: conn.ID,
			RunID:       run.runID,
		})
	}

	return nil
}

// pause is a cancellable simulated delay. Cancellation wins over an
// already-expired timer.
func (w *Walker) pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (w *Walker) baseEvent(eventType events.EventType, workspaceID string) events.BaseEvent {
	return events.BaseEvent{
		ID:          w.bus.GenerateID(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkspaceID: workspaceID,
	}
}

func (w *Walker) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := w.bus.Publish(ctx, key, event); err != nil {
		w.logger.Warn("Failed to publish run event", "event_type", event.GetType(), "error", err)
	}
}
