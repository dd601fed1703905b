// Package events provides an event system for pool and workload notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventPoolStarted is emitted when a scenario pool starts its workers
	EventPoolStarted EventType = "pool_started"
	// EventPoolStopped is emitted once every worker has exited
	EventPoolStopped EventType = "pool_stopped"
	// EventTaskFailed is emitted when a task returns an error
	EventTaskFailed EventType = "task_failed"
	// EventTaskPanicked is emitted when a task panics
	EventTaskPanicked EventType = "task_panicked"
	// EventTaskAbandoned is emitted when a queued task is dropped by shutdown
	EventTaskAbandoned EventType = "task_abandoned"
	// EventFaultInjected is emitted when the injector alters a task
	EventFaultInjected EventType = "fault_injected"
	// EventRetryStart is emitted when a failed task is resubmitted
	EventRetryStart EventType = "retry_start"
	// EventRetrySuccess is emitted when a resubmitted task succeeds
	EventRetrySuccess EventType = "retry_success"
	// EventRetryFailed is emitted when a task exhausts its retries
	EventRetryFailed EventType = "retry_failed"
)

// FaultType represents the kind of injected fault
type FaultType string

const (
	FaultTypeError FaultType = "error"
	FaultTypePanic FaultType = "panic"
	FaultTypeDelay FaultType = "delay"
)

// Event represents a pool or workload event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TaskID    string    `json:"task_id,omitempty"`
	WorkerID  int       `json:"worker_id"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	FaultType     FaultType `json:"fault_type,omitempty"`
	DelayDuration string    `json:"delay_duration,omitempty"`
	Attempt       int       `json:"attempt,omitempty"`
	Workers       int       `json:"workers,omitempty"`
	Error         string    `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewPoolStartedEvent creates a pool started event
func NewPoolStartedEvent(workers int) Event {
	return Event{
		Type:      EventPoolStarted,
		Timestamp: time.Now(),
		WorkerID:  -1,
		Data:      EventData{Workers: workers},
	}
}

// NewPoolStoppedEvent creates a pool stopped event
func NewPoolStoppedEvent(err error) Event {
	return Event{
		Type:      EventPoolStopped,
		Timestamp: time.Now(),
		WorkerID:  -1,
		Data:      EventData{Error: errString(err)},
	}
}

// NewTaskFailedEvent creates a task failure event
func NewTaskFailedEvent(taskID string, workerID int, err error) Event {
	return Event{
		Type:      EventTaskFailed,
		Timestamp: time.Now(),
		TaskID:    taskID,
		WorkerID:  workerID,
		Data:      EventData{Error: errString(err)},
	}
}

// NewTaskPanickedEvent creates a task panic event
func NewTaskPanickedEvent(taskID string, workerID int, err error) Event {
	e := NewTaskFailedEvent(taskID, workerID, err)
	e.Type = EventTaskPanicked
	return e
}

// NewTaskAbandonedEvent creates a task abandoned event
func NewTaskAbandonedEvent(taskID string) Event {
	return Event{
		Type:      EventTaskAbandoned,
		Timestamp: time.Now(),
		TaskID:    taskID,
		WorkerID:  -1,
	}
}

// NewFaultInjectedEvent creates a fault injection event
func NewFaultInjectedEvent(faultType FaultType) Event {
	return Event{
		Type:      EventFaultInjected,
		Timestamp: time.Now(),
		WorkerID:  -1,
		Data:      EventData{FaultType: faultType},
	}
}

// NewFaultInjectedEventWithDelay creates a fault injection event for delay injection
func NewFaultInjectedEventWithDelay(delay time.Duration) Event {
	e := NewFaultInjectedEvent(FaultTypeDelay)
	e.Data.DelayDuration = delay.String()
	return e
}

// NewRetryStartEvent creates a retry start event
func NewRetryStartEvent(taskID string, attempt int) Event {
	return Event{
		Type:      EventRetryStart,
		Timestamp: time.Now(),
		TaskID:    taskID,
		WorkerID:  -1,
		Data:      EventData{Attempt: attempt},
	}
}

// NewRetrySuccessEvent creates a retry success event
func NewRetrySuccessEvent(taskID string, attempt int) Event {
	e := NewRetryStartEvent(taskID, attempt)
	e.Type = EventRetrySuccess
	return e
}

// NewRetryFailedEvent creates a retry failed event
func NewRetryFailedEvent(taskID string, attempt int, err error) Event {
	e := NewRetryStartEvent(taskID, attempt)
	e.Type = EventRetryFailed
	e.Data.Error = errString(err)
	return e
}
