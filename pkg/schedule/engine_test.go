package schedule

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arkhamlabs/arkham/pkg/eventbus"
	"github.com/arkhamlabs/arkham/pkg/events"
	"github.com/arkhamlabs/arkham/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureBus struct {
	mu     sync.Mutex
	types  []events.EventType
	nextID int
}

func (b *captureBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.types = append(b.types, event.GetType())

	return nil
}

func (b *captureBus) Handle(events.EventType, eventbus.EventHandler) error { return nil }
func (b *captureBus) Subscribe(context.Context) error                     { return nil }
func (b *captureBus) Close() error                                        { return nil }

func (b *captureBus) GenerateID() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++

	return "evt-" + strconv.Itoa(b.nextID)
}

func (b *captureBus) count(eventType events.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0

	for _, t := range b.types {
		if t == eventType {
			total++
		}
	}

	return total
}

func scheduledNode(id string, s *models.Schedule) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeGroup, Schedule: s}
}

func testWorkspace(nodes ...*models.Node) *models.Workspace {
	return &models.Workspace{ID: "ws-1", Nodes: nodes}
}

func noopFire(context.Context, string, string) {}

func TestEngine_ArmRequiresEnabledSchedule(t *testing.T) {
	bus := &captureBus{}
	engine := NewEngine(noopFire, bus, slog.Default())

	bare := scheduledNode("g1", nil)
	err := engine.Arm(t.Context(), testWorkspace(bare), bare)
	assert.ErrorIs(t, err, ErrNoSchedule)

	disabled := scheduledNode("g2", &models.Schedule{Type: models.ScheduleTypeDaily})
	err = engine.Arm(t.Context(), testWorkspace(disabled), disabled)
	assert.ErrorIs(t, err, ErrScheduleDisabled)

	assert.Equal(t, 0, engine.ArmedCount())
}

func TestEngine_ArmRejectsBadCronExpression(t *testing.T) {
	bus := &captureBus{}
	engine := NewEngine(noopFire, bus, slog.Default())

	node := scheduledNode("g1", &models.Schedule{
		Enabled:        true,
		Type:           models.ScheduleTypeCustom,
		CronExpression: "not cron",
	})

	err := engine.Arm(t.Context(), testWorkspace(node), node)
	assert.ErrorIs(t, err, models.ErrInvalidSchedule)
	assert.False(t, engine.IsArmed("g1"))
}

func TestEngine_ArmAndDisarm(t *testing.T) {
	bus := &captureBus{}
	engine := NewEngine(noopFire, bus, slog.Default())

	node := scheduledNode("g1", &models.Schedule{
		Enabled:       true,
		Type:          models.ScheduleTypeInterval,
		IntervalValue: 5,
		IntervalUnit:  models.IntervalUnitMinutes,
	})
	workspace := testWorkspace(node)

	require.NoError(t, engine.Arm(t.Context(), workspace, node))

	assert.True(t, engine.IsArmed("g1"))
	require.NotNil(t, node.Schedule.NextRun)

	nextRun, ok := engine.NextRun("g1")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), nextRun, time.Minute)

	assert.Equal(t, 1, bus.count(events.ScheduleArmedEvent))

	engine.Disarm(t.Context(), workspace.ID, "g1")

	assert.False(t, engine.IsArmed("g1"))
	assert.Equal(t, 0, engine.ArmedCount())
	assert.Equal(t, 1, bus.count(events.ScheduleDisarmedEvent))

	// Disarming a node that was never armed is a no-op.
	engine.Disarm(t.Context(), workspace.ID, "unknown")
	assert.Equal(t, 1, bus.count(events.ScheduleDisarmedEvent))
}

func TestEngine_ReconfigureReplacesTask(t *testing.T) {
	bus := &captureBus{}
	engine := NewEngine(noopFire, bus, slog.Default())

	node := scheduledNode("g1", &models.Schedule{
		Enabled:   true,
		Type:      models.ScheduleTypeDaily,
		DailyTime: "09:00",
	})
	workspace := testWorkspace(node)

	// Repeated reconfiguration never stacks timers.
	require.NoError(t, engine.Reconfigure(t.Context(), workspace, node))
	require.NoError(t, engine.Reconfigure(t.Context(), workspace, node))
	require.NoError(t, engine.Reconfigure(t.Context(), workspace, node))

	assert.Equal(t, 1, engine.ArmedCount())

	node.Schedule.Enabled = false
	require.NoError(t, engine.Reconfigure(t.Context(), workspace, node))

	assert.Equal(t, 0, engine.ArmedCount())
}

func TestEngine_IntervalFiresRepeatedly(t *testing.T) {
	bus := &captureBus{}

	var fired atomic.Int32

	engine := NewEngine(func(_ context.Context, workspaceID, nodeID string) {
		assert.Equal(t, "ws-1", workspaceID)
		assert.Equal(t, "g1", nodeID)
		fired.Add(1)
	}, bus, slog.Default())

	// Collapse the wait so the loop runs at test speed.
	engine.delayUntil = func(time.Time, time.Time) time.Duration { return time.Millisecond }

	node := scheduledNode("g1", &models.Schedule{
		Enabled:       true,
		Type:          models.ScheduleTypeInterval,
		IntervalValue: 1,
		IntervalUnit:  models.IntervalUnitMinutes,
	})
	workspace := testWorkspace(node)

	require.NoError(t, engine.Arm(t.Context(), workspace, node))

	require.NotNil(t, node.Schedule.NextRun)
	armedFor := *node.Schedule.NextRun

	assert.Eventually(t, func() bool {
		return fired.Load() >= 2
	}, time.Second, time.Millisecond, "interval schedule keeps firing")

	engine.Disarm(t.Context(), workspace.ID, "g1")

	// The fire time keeps advancing between occurrences, and each new
	// occurrence is written back to the schedule itself.
	assert.GreaterOrEqual(t, bus.count(events.ScheduleFiredEvent), 2)
	require.NotNil(t, node.Schedule.NextRun)
	assert.True(t, node.Schedule.NextRun.After(armedFor),
		"schedule carries the recomputed next run after firing")

	settled := fired.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, fired.Load(), "disarmed schedule stops firing")
}

func TestEngine_CalendarRearmsAfterFire(t *testing.T) {
	bus := &captureBus{}

	var fired atomic.Int32

	engine := NewEngine(func(context.Context, string, string) {
		fired.Add(1)
	}, bus, slog.Default())
	engine.delayUntil = func(time.Time, time.Time) time.Duration { return time.Millisecond }

	node := scheduledNode("g1", &models.Schedule{
		Enabled:   true,
		Type:      models.ScheduleTypeDaily,
		DailyTime: "09:00",
	})
	workspace := testWorkspace(node)

	require.NoError(t, engine.Arm(t.Context(), workspace, node))

	// One-shot semantics re-arm: the task survives its first fire.
	assert.Eventually(t, func() bool {
		return fired.Load() >= 2
	}, time.Second, time.Millisecond)

	assert.True(t, engine.IsArmed("g1"))

	nextRun, ok := engine.NextRun("g1")
	require.True(t, ok)
	assert.True(t, nextRun.After(time.Now()), "next occurrence stays in the future")

	engine.Disarm(t.Context(), workspace.ID, "g1")
}

func TestEngine_TaskSelfClearsWhenScheduleStopsResolving(t *testing.T) {
	bus := &captureBus{}
	engine := NewEngine(noopFire, bus, slog.Default())
	engine.delayUntil = func(time.Time, time.Time) time.Duration { return time.Millisecond }

	armed := &task{cancel: func() {}, done: make(chan struct{}), nextRun: engine.now()}
	engine.mu.Lock()
	engine.tasks["g1"] = armed
	engine.mu.Unlock()

	// A type the resolver cannot compute a following occurrence for.
	s := &models.Schedule{Enabled: true, Type: "lunar"}

	engine.run(t.Context(), armed, "ws-1", "g1", s)

	// The loop bailed out and removed its own registration instead of
	// leaving a dead entry behind.
	assert.False(t, engine.IsArmed("g1"))
	assert.Equal(t, 0, engine.ArmedCount())
	assert.Equal(t, 1, bus.count(events.ScheduleFiredEvent))
}

func TestEngine_ArmAll(t *testing.T) {
	bus := &captureBus{}
	engine := NewEngine(noopFire, bus, slog.Default())

	enabled := scheduledNode("g1", &models.Schedule{
		Enabled: true,
		Type:    models.ScheduleTypeInterval,
	})
	disabled := scheduledNode("g2", &models.Schedule{Type: models.ScheduleTypeDaily})
	unscheduled := &models.Node{ID: "n1", Type: "filter"}
	broken := scheduledNode("g3", &models.Schedule{
		Enabled:        true,
		Type:           models.ScheduleTypeCustom,
		CronExpression: "bad",
	})

	workspace := testWorkspace(enabled, disabled, unscheduled, broken)

	engine.ArmAll(t.Context(), workspace)

	assert.Equal(t, 1, engine.ArmedCount())
	assert.True(t, engine.IsArmed("g1"))
	assert.False(t, engine.IsArmed("g3"))

	engine.Stop(t.Context(), workspace.ID)
	assert.Equal(t, 0, engine.ArmedCount())
}
