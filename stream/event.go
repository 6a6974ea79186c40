// Package stream provides a real-time event broker for recipeflow
// lifecycle events. It bridges the hook.Extension system to in-process
// consumers via topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Execution events.
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionCompleted EventType = "execution.completed"
	EventExecutionFailed    EventType = "execution.failed"
	EventExecutionPaused    EventType = "execution.paused"
	EventExecutionResumed   EventType = "execution.resumed"

	// Step events.
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"
	EventStepRetrying  EventType = "step.retrying"

	// Schedule events.
	EventScheduleFired EventType = "schedule.fired"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// ExecutionEventData is the payload for execution and step lifecycle
// events.
type ExecutionEventData struct {
	ExecutionID string `json:"execution_id"`
	RecipeID    string `json:"recipe_id"`
	Status      string `json:"status,omitempty"`
	StepName    string `json:"step_name,omitempty"`
	StepType    string `json:"step_type,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`
	Error       string `json:"error,omitempty"`
	Attempt     int    `json:"attempt,omitempty"`
	DelayMs     int64  `json:"delay_ms,omitempty"`
}

// ScheduleEventData is the payload for schedule lifecycle events.
type ScheduleEventData struct {
	ScheduleID   string `json:"schedule_id"`
	ScheduleName string `json:"schedule_name"`
	RecipeID     string `json:"recipe_id"`
	ExecutionID  string `json:"execution_id"`
}
