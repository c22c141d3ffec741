package models

import "time"

// EventSource tells where a trigger activation came from.
type EventSource string

const (
	EventSourceWebhook     EventSource = "webhook"
	EventSourceIntegration EventSource = "integration"
)

// EventStatus is the lifecycle state of a trigger event.
type EventStatus string

const (
	EventStatusReceived  EventStatus = "received"
	EventStatusProcessed EventStatus = "processed"
	EventStatusIgnored   EventStatus = "ignored"
	EventStatusFailed    EventStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusProcessed || s == EventStatusIgnored || s == EventStatusFailed
}

// CanTransition reports whether from -> to is an edge of the event state machine.
// Only received events move, and only to a terminal state.
func (s EventStatus) CanTransition(to EventStatus) bool {
	return s == EventStatusReceived && to.IsTerminal()
}

// TriggerEvent is the audit record of one activation attempt.
type TriggerEvent struct {
	ID           string         `json:"id"`
	TriggerID    string         `json:"trigger_id"`
	Source       EventSource    `json:"event_source"`
	EventData    any            `json:"event_data"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Status       EventStatus    `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	RunID        string         `json:"run_id,omitempty"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
