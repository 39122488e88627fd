package api

import "time"

// EventType identifies an execution history event.
type EventType string

const (
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionSucceeded EventType = "execution.succeeded"
	EventExecutionFailed    EventType = "execution.failed"

	EventStepEntered   EventType = "step.entered"
	EventStepSucceeded EventType = "step.succeeded"
	EventStepFailed    EventType = "step.failed"

	EventTaskRetried EventType = "task.retried"
	EventTaskCaught  EventType = "task.caught"

	EventMapItemStarted         EventType = "map.item.started"
	EventMapItemFinished        EventType = "map.item.finished"
	EventParallelBranchFinished EventType = "parallel.branch.finished"
)

// Event is a small append-only history record for audit/debugging.
// Keep Detail low-volume: do NOT dump payloads here.
type Event struct {
	At   time.Time
	Type EventType

	// Step is the node the event refers to, if any.
	Step string
	// Scope locates nested scopes, e.g. "Process Consumers[1]" or
	// "Provision Producer Access/0". Empty for the top level.
	Scope   string
	Attempt int
	Detail  string
}
