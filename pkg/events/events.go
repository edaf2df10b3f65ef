// Package events defines the run-lifecycle events published while the
// engine simulates node and group execution. The rendering layer
// subscribes to these to animate cards and connectors.
package events

import (
	"time"
)

type EventType string

// Topic carries every run-lifecycle event.
const Topic = "arkham.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Node-level events.
	NodeStartedEvent  EventType = "node.started"
	NodeFinishedEvent EventType = "node.finished"

	// Connector animation events.
	ConnectorActivatedEvent   EventType = "connector.activated"
	ConnectorDeactivatedEvent EventType = "connector.deactivated"

	// Group-level events.
	GroupStartedEvent  EventType = "group.started"
	GroupFinishedEvent EventType = "group.finished"
	GroupStoppedEvent  EventType = "group.stopped"

	// Workspace-wide run-all events.
	RunAllStartedEvent  EventType = "runall.started"
	RunAllFinishedEvent EventType = "runall.finished"
	RunAllStoppedEvent  EventType = "runall.stopped"

	// Schedule engine events.
	ScheduleArmedEvent    EventType = "schedule.armed"
	ScheduleDisarmedEvent EventType = "schedule.disarmed"
	ScheduleFiredEvent    EventType = "schedule.fired"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type NodeStarted struct {
	BaseEvent

	NodeID  string `json:"node_id"`
	GroupID string `json:"group_id,omitempty"` // empty for standalone node runs
	RunID   string `json:"run_id"`
}

func (e NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

type NodeFinished struct {
	BaseEvent

	NodeID   string        `json:"node_id"`
	GroupID  string        `json:"group_id,omitempty"`
	RunID    string        `json:"run_id"`
	Duration time.Duration `json:"duration"`
}

func (e NodeFinished) GetType() EventType {
	return NodeFinishedEvent
}

type ConnectorActivated struct {
	BaseEvent

	ConnectorID string `json:"connector_id"`
	FromNode    string `json:"from_node"`
	ToNode      string `json:"to_node"`
	RunID       string `json:"run_id"`
}

func (e ConnectorActivated) GetType() EventType {
	return ConnectorActivatedEvent
}

type ConnectorDeactivated struct {
	BaseEvent

	ConnectorID string `json:"connector_id"`
	RunID       string `json:"run_id"`
}

func (e ConnectorDeactivated) GetType() EventType {
	return ConnectorDeactivatedEvent
}

type GroupStarted struct {
	BaseEvent

	GroupID   string `json:"group_id"`
	RunID     string `json:"run_id"`
	NodeCount int    `json:"node_count"`
}

func (e GroupStarted) GetType() EventType {
	return GroupStartedEvent
}

type GroupFinished struct {
	BaseEvent

	GroupID  string        `json:"group_id"`
	RunID    string        `json:"run_id"`
	Duration time.Duration `json:"duration"`
}

func (e GroupFinished) GetType() EventType {
	return GroupFinishedEvent
}

type GroupStopped struct {
	BaseEvent

	GroupID string `json:"group_id"`
	RunID   string `json:"run_id"`
}

func (e GroupStopped) GetType() EventType {
	return GroupStoppedEvent
}

type RunAllStarted struct {
	BaseEvent

	RunID      string `json:"run_id"`
	GroupCount int    `json:"group_count"`
}

func (e RunAllStarted) GetType() EventType {
	return RunAllStartedEvent
}

type RunAllFinished struct {
	BaseEvent

	RunID    string        `json:"run_id"`
	Duration time.Duration `json:"duration"`
}

func (e RunAllFinished) GetType() EventType {
	return RunAllFinishedEvent
}

type RunAllStopped struct {
	BaseEvent

	RunID string `json:"run_id"`
}

func (e RunAllStopped) GetType() EventType {
	return RunAllStoppedEvent
}

type ScheduleArmed struct {
	BaseEvent

	NodeID  string    `json:"node_id"`
	NextRun time.Time `json:"next_run"`
}

func (e ScheduleArmed) GetType() EventType {
	return ScheduleArmedEvent
}

type ScheduleDisarmed struct {
	BaseEvent

	NodeID string `json:"node_id"`
}

func (e ScheduleDisarmed) GetType() EventType {
	return ScheduleDisarmedEvent
}

type ScheduleFired struct {
	BaseEvent

	NodeID  string     `json:"node_id"`
	FiredAt time.Time  `json:"fired_at"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

func (e ScheduleFired) GetType() EventType {
	return ScheduleFiredEvent
}
