package execution

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/arkhamlabs/arkham/pkg/events"
	"github.com/arkhamlabs/arkham/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWalker(registry *Registry, bus *recordingBus) *Walker {
	walker := NewWalker(registry, bus, slog.Default())
	walker.EdgeDelay = time.Millisecond
	walker.NodeDelay = 2 * time.Millisecond

	return walker
}

func testNode(id string) *models.Node {
	return &models.Node{ID: id, Type: "filter"}
}

func testConnector(id, from, to string) *models.Connector {
	return &models.Connector{ID: id, FromNode: from, ToNode: to}
}

func TestWalker_ChainVisitsEachNodeOnce(t *testing.T) {
	registry := NewRegistry()
	bus := newRecordingBus()
	walker := testWalker(registry, bus)

	subset := []*models.Node{testNode("a"), testNode("b"), testNode("c")}
	connectors := []*models.Connector{
		testConnector("c1", "a", "b"),
		testConnector("c2", "b", "c"),
	}

	err := walker.Execute(t.Context(), "ws", "g", "run-1", subset, connectors)
	require.NoError(t, err)

	// Dependency order, each node exactly once.
	assert.Equal(t, []string{"a", "b", "c"}, bus.nodeStartOrder())

	// Everything cleaned up after the walk.
	snapshot := registry.Snapshot()
	assert.Empty(t, snapshot.RunningNodes)
	assert.Empty(t, snapshot.ActiveConnectors)

	// Each connector animated and cleared once.
	assert.Equal(t, 2, bus.countType(events.ConnectorActivatedEvent))
	assert.Equal(t, 2, bus.countType(events.ConnectorDeactivatedEvent))
}

func TestWalker_DiamondVisitsSharedNodeOnce(t *testing.T) {
	registry := NewRegistry()
	bus := newRecordingBus()
	walker := testWalker(registry, bus)

	// a feeds b and c, both feed d.
	subset := []*models.Node{testNode("a"), testNode("b"), testNode("c"), testNode("d")}
	connectors := []*models.Connector{
		testConnector("c1", "a", "b"),
		testConnector("c2", "a", "c"),
		testConnector("c3", "b", "d"),
		testConnector("c4", "c", "d"),
	}

	err := walker.Execute(t.Context(), "ws", "g", "run-1", subset, connectors)
	require.NoError(t, err)

	order := bus.nodeStartOrder()
	assert.Len(t, order, 4)
	assert.Equal(t, "a", order[0])

	seen := make(map[string]int)
	for _, id := range order {
		seen[id]++
	}

	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, 1, seen[id], "node %s visited once", id)
	}
}

func TestWalker_PureCycleIsANoOp(t *testing.T) {
	registry := NewRegistry()
	bus := newRecordingBus()
	walker := testWalker(registry, bus)

	subset := []*models.Node{testNode("a"), testNode("b")}
	connectors := []*models.Connector{
		testConnector("c1", "a", "b"),
		testConnector("c2", "b", "a"),
	}

	done := make(chan error, 1)
	go func() {
		done <- walker.Execute(context.Background(), "ws", "g", "run-1", subset, connectors)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("walker hung on cyclic subset")
	}

	assert.Empty(t, bus.nodeStartOrder())
	assert.True(t, registry.Empty())
}

func TestWalker_CycleReachableFromEntryTerminates(t *testing.T) {
	registry := NewRegistry()
	bus := newRecordingBus()
	walker := testWalker(registry, bus)

	// a → b → c → b: the revisit guard stops the loop.
	subset := []*models.Node{testNode("a"), testNode("b"), testNode("c")}
	connectors := []*models.Connector{
		testConnector("c1", "a", "b"),
		testConnector("c2", "b", "c"),
		testConnector("c3", "c", "b"),
	}

	err := walker.Execute(t.Context(), "ws", "g", "run-1", subset, connectors)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, bus.nodeStartOrder())
	assert.True(t, registry.Empty())
}

func TestWalker_DanglingConnectorIgnored(t *testing.T) {
	registry := NewRegistry()
	bus := newRecordingBus()
	walker := testWalker(registry, bus)

	subset := []*models.Node{testNode("a"), testNode("b")}
	connectors := []*models.Connector{
		testConnector("c1", "a", "b"),
		testConnector("c2", "a", "ghost"),
		testConnector("c3", "phantom", "b"),
	}

	err := walker.Execute(t.Context(), "ws", "g", "run-1", subset, connectors)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, bus.nodeStartOrder())
	assert.True(t, registry.Empty())
}

func TestWalker_ConnectorActiveBeforeTargetExecutes(t *testing.T) {
	registry := NewRegistry()
	bus := newRecordingBus()
	walker := testWalker(registry, bus)

	subset := []*models.Node{testNode("a"), testNode("b")}
	connectors := []*models.Connector{testConnector("c1", "a", "b")}

	err := walker.Execute(t.Context(), "ws", "g", "run-1", subset, connectors)
	require.NoError(t, err)

	types := bus.typeOrder()

	activated := indexOf(types, events.ConnectorActivatedEvent)
	finishedB := -1

	for i, eventType := range types {
		if eventType == events.NodeFinishedEvent {
			finishedB = i // b finishes before a in DFS unwinding
			break
		}
	}

	require.GreaterOrEqual(t, activated, 0)
	require.GreaterOrEqual(t, finishedB, 0)
	assert.Less(t, activated, finishedB, "connector animates before its target completes")
}

func TestWalker_CancellationAbortsWalk(t *testing.T) {
	registry := NewRegistry()
	bus := newRecordingBus()
	walker := testWalker(registry, bus)
	walker.NodeDelay = 50 * time.Millisecond

	subset := []*models.Node{testNode("a"), testNode("b"), testNode("c")}
	connectors := []*models.Connector{
		testConnector("c1", "a", "b"),
		testConnector("c2", "b", "c"),
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- walker.Execute(ctx, "ws", "g", "run-1", subset, connectors)
	}()

	// Let the walk reach its first suspension, then stop it.
	assert.Eventually(t, func() bool {
		return registry.IsNodeRunning("a")
	}, time.Second, time.Millisecond)

	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	// The walk never reached the tail of the chain.
	assert.NotContains(t, bus.nodeStartOrder(), "c")
}

func TestWalker_CancelledContextLeavesRegistryClean(t *testing.T) {
	registry := NewRegistry()
	bus := newRecordingBus()
	walker := testWalker(registry, bus)

	subset := []*models.Node{testNode("a"), testNode("b")}
	connectors := []*models.Connector{testConnector("c1", "a", "b")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := walker.Execute(ctx, "ws", "g", "run-1", subset, connectors)
	require.ErrorIs(t, err, context.Canceled)

	// Nothing was marked running or started before the abort.
	assert.True(t, registry.Empty())
	assert.Empty(t, bus.nodeStartOrder())
}

func indexOf(types []events.EventType, target events.EventType) int {
	for i, eventType := range types {
		if eventType == target {
			return i
		}
	}

	return -1
}
