// Package events defines the messages exchanged between the API and workers over the event bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries run queue events.
const Topic = "sequences.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowRunQueuedEvent EventType = "workflow_run.queued"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	SequenceID string         `json:"sequence_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// QueueReason tells why a run was put on the queue.
type QueueReason string

const (
	QueueReasonDispatch QueueReason = "dispatch"
	QueueReasonRecovery QueueReason = "recovery"
)

// WorkflowRunQueued asks a worker to execute a stored run.
type WorkflowRunQueued struct {
	BaseEvent

	RunID          string      `json:"run_id"`
	TriggerID      string      `json:"trigger_id"`
	TriggerEventID string      `json:"trigger_event_id,omitempty"`
	Reason         QueueReason `json:"reason"`
}

func (w WorkflowRunQueued) GetType() EventType {
	return WorkflowRunQueuedEvent
}

func NewBaseEvent(eventType EventType, sequenceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		SequenceID: sequenceID,
		Metadata:   make(map[string]any),
	}
}
