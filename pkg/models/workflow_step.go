package models

import "time"

// StepStatus is the lifecycle state of a workflow step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
)

// DefaultMaxRetries is the attempt budget of a step when its action does not set one.
const DefaultMaxRetries = 3

// WorkflowStep is the execution of one action within a run. Position mirrors
// the action's place in the chain at dispatch time.
type WorkflowStep struct {
	ID              string         `json:"id"`
	RunID           string         `json:"run_id"`
	ActionID        string         `json:"action_id"`
	Name            string         `json:"name"`
	Position        int            `json:"position"`
	Status          StepStatus     `json:"status"`
	InputData       map[string]any `json:"input_data,omitempty"`
	OutputData      map[string]any `json:"output_data,omitempty"`
	ProcessedOutput map[string]any `json:"processed_output,omitempty"`
	RetryCount      int            `json:"retry_count"`
	MaxRetries      int            `json:"max_retries"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationMs      int64          `json:"duration_ms"`
	ErrorCode       string         `json:"error_code,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`

	// Version is bumped by every persisted update; writers must present the
	// version they read.
	Version int64 `json:"version"`
}
