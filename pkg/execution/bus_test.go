package execution

import (
	"context"
	"strconv"
	"sync"

	"github.com/arkhamlabs/arkham/pkg/eventbus"
	"github.com/arkhamlabs/arkham/pkg/events"
)

// recordingBus captures published events in order so tests can assert
// on traversal sequencing.
type recordingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
	nextID int
}

func newRecordingBus() *recordingBus {
	return &recordingBus{}
}

func (b *recordingBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	return nil
}

func (b *recordingBus) Handle(events.EventType, eventbus.EventHandler) error {
	return nil
}

func (b *recordingBus) Subscribe(context.Context) error {
	return nil
}

func (b *recordingBus) Close() error {
	return nil
}

func (b *recordingBus) GenerateID() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++

	return "evt-" + strconv.Itoa(b.nextID)
}

// nodeStartOrder returns the node ids of NodeStarted events in
// publication order.
func (b *recordingBus) nodeStartOrder() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var order []string

	for _, event := range b.events {
		if started, ok := event.(events.NodeStarted); ok {
			order = append(order, started.NodeID)
		}
	}

	return order
}

// typeOrder returns the sequence of event types published.
func (b *recordingBus) typeOrder() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	types := make([]events.EventType, 0, len(b.events))
	for _, event := range b.events {
		types = append(types, event.GetType())
	}

	return types
}

func (b *recordingBus) countType(eventType events.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0

	for _, event := range b.events {
		if event.GetType() == eventType {
			count++
		}
	}

	return count
}
