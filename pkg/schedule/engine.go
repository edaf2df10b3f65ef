package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/arkhamlabs/arkham/pkg/eventbus"
	"github.com/arkhamlabs/arkham/pkg/events"
	"github.com/arkhamlabs/arkham/pkg/models"
)

var (
	// ErrNoSchedule is returned when arming a node that has no schedule.
	ErrNoSchedule = errors.New("node has no schedule")

	// ErrScheduleDisabled is returned when arming a disabled schedule.
	ErrScheduleDisabled = errors.New("schedule is disabled")
)

// FireFunc is invoked when an armed schedule reaches its fire time.
type FireFunc func(ctx context.Context, workspaceID, nodeID string)

type task struct {
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time
}

// Engine arms one timer task per scheduled node. Interval schedules
// repeat on their period; calendar schedules (daily, weekly, monthly,
// custom) are one-shot timers re-armed after each fire. Reconfiguring
// always disarms the previous task before arming the new one, so a
// node never has two live timers.
type Engine struct {
	fire   FireFunc
	bus    eventbus.EventBus
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*task

	now        func() time.Time
	delayUntil func(now, next time.Time) time.Duration
}

func NewEngine(fire FireFunc, bus eventbus.EventBus, logger *slog.Logger) *Engine {
	return &Engine{
		fire:       fire,
		bus:        bus,
		logger:     logger.With("module", "schedule"),
		tasks:      make(map[string]*task),
		now:        time.Now,
		delayUntil: func(now, next time.Time) time.Duration { return next.Sub(now) },
	}
}

// Arm starts the timer task for the node's schedule, replacing any
// existing task for that node. The computed next run time is written
// back to the schedule for display.
func (e *Engine) Arm(ctx context.Context, workspace *models.Workspace, node *models.Node) error {
	if node.Schedule == nil {
		return ErrNoSchedule
	}

	if !node.Schedule.Enabled {
		return ErrScheduleDisabled
	}

	now := e.now()

	next, err := node.Schedule.NextRunAfter(now)
	if err != nil {
		return err
	}

	e.Disarm(ctx, workspace.ID, node.ID)

	taskCtx, cancel := context.WithCancel(context.Background())
	armed := &task{cancel: cancel, done: make(chan struct{}), nextRun: next}

	e.mu.Lock()
	e.tasks[node.ID] = armed
	e.mu.Unlock()

	node.Schedule.NextRun = &next

	go e.run(taskCtx, armed, workspace.ID, node.ID, node.Schedule)

	e.publish(ctx, node.ID, events.ScheduleArmed{
		BaseEvent: e.baseEvent(events.ScheduleArmedEvent, workspace.ID),
		NodeID:    node.ID,
		NextRun:   next,
	})

	e.logger.Info("Armed schedule",
		"workspace_id", workspace.ID, "node_id", node.ID,
		"type", node.Schedule.Type, "next_run", next)

	return nil
}

// Disarm cancels the node's timer task if one is armed. Safe to call
// for nodes that were never armed.
func (e *Engine) Disarm(ctx context.Context, workspaceID, nodeID string) {
	e.mu.Lock()
	armed := e.tasks[nodeID]
	delete(e.tasks, nodeID)
	e.mu.Unlock()

	if armed == nil {
		return
	}

	armed.cancel()
	<-armed.done

	e.publish(ctx, nodeID, events.ScheduleDisarmed{
		BaseEvent: e.baseEvent(events.ScheduleDisarmedEvent, workspaceID),
		NodeID:    nodeID,
	})

	e.logger.Info("Disarmed schedule", "workspace_id", workspaceID, "node_id", nodeID)
}

// Reconfigure applies a schedule change: the old task is always torn
// down, and a new one is armed only when the schedule is enabled.
func (e *Engine) Reconfigure(ctx context.Context, workspace *models.Workspace, node *models.Node) error {
	if node.Schedule == nil || !node.Schedule.Enabled {
		e.Disarm(ctx, workspace.ID, node.ID)

		return nil
	}

	return e.Arm(ctx, workspace, node)
}

// ArmAll arms every enabled schedule in the workspace, typically at
// startup. Invalid schedules are logged and skipped.
func (e *Engine) ArmAll(ctx context.Context, workspace *models.Workspace) {
	for _, node := range workspace.Nodes {
		if node.Schedule == nil || !node.Schedule.Enabled {
			continue
		}

		if err := e.Arm(ctx, workspace, node); err != nil {
			e.logger.Warn("Skipping schedule",
				"workspace_id", workspace.ID, "node_id", node.ID, "error", err)
		}
	}
}

// Stop disarms every task. Blocks until all task goroutines exit.
func (e *Engine) Stop(ctx context.Context, workspaceID string) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.tasks))
	for nodeID := range e.tasks {
		ids = append(ids, nodeID)
	}
	e.mu.Unlock()

	for _, nodeID := range ids {
		e.Disarm(ctx, workspaceID, nodeID)
	}
}

// IsArmed reports whether the node currently has a live timer task.
func (e *Engine) IsArmed(nodeID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.tasks[nodeID]

	return ok
}

// ArmedCount returns the number of live timer tasks.
func (e *Engine) ArmedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.tasks)
}

// NextRun returns the next fire time for an armed node.
func (e *Engine) NextRun(nodeID string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	armed, ok := e.tasks[nodeID]
	if !ok {
		return time.Time{}, false
	}

	return armed.nextRun, true
}

// run is the per-task timer loop. Each cycle waits for the task's next
// fire time, invokes the fire callback, then computes the following
// occurrence. Cancellation wins over a pending fire.
func (e *Engine) run(ctx context.Context, armed *task, workspaceID, nodeID string, s *models.Schedule) {
	defer close(armed.done)

	next := armed.nextRun

	for {
		timer := time.NewTimer(e.delayUntil(e.now(), next))

		select {
		case <-ctx.Done():
			timer.Stop()

			return
		case <-timer.C:
		}

		firedAt := e.now()

		following, err := s.NextRunAfter(firedAt)
		if err != nil {
			// Unknown type or bad cron expression after Arm validated it
			// should not happen; bail out rather than spin.
			e.logger.Error("Schedule stopped producing run times",
				"workspace_id", workspaceID, "node_id", nodeID, "error", err)
			e.publishFired(ctx, workspaceID, nodeID, firedAt, nil)
			e.fire(ctx, workspaceID, nodeID)

			// The timer is gone; don't leave a phantom armed entry
			// behind. Guarded in case a re-arm already replaced it.
			e.mu.Lock()
			if e.tasks[nodeID] == armed {
				delete(e.tasks, nodeID)
			}
			e.mu.Unlock()

			return
		}

		e.mu.Lock()
		armed.nextRun = following
		s.NextRun = &following
		e.mu.Unlock()

		e.publishFired(ctx, workspaceID, nodeID, firedAt, &following)
		e.fire(ctx, workspaceID, nodeID)

		next = following
	}
}

func (e *Engine) publishFired(ctx context.Context, workspaceID, nodeID string, firedAt time.Time, next *time.Time) {
	e.publish(ctx, nodeID, events.ScheduleFired{
		BaseEvent: e.baseEvent(events.ScheduleFiredEvent, workspaceID),
		NodeID:    nodeID,
		FiredAt:   firedAt,
		NextRun:   next,
	})
}

func (e *Engine) baseEvent(eventType events.EventType, workspaceID string) events.BaseEvent {
	return events.BaseEvent{
		ID:          e.bus.GenerateID(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkspaceID: workspaceID,
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := e.bus.Publish(ctx, key, event); err != nil {
		e.logger.Warn("Failed to publish schedule event", "event_type", event.GetType(), "error", err)
	}
}
