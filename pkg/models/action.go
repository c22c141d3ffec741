package models

import (
	"sort"
	"strconv"
	"time"
)

// ActionType identifies how an action node is executed.
type ActionType string

const (
	// ActionTypeAppAction executes an operation of a connected integration.
	ActionTypeAppAction ActionType = "app_action"
)

// Action is one node of a sequence's execution chain.
type Action struct {
	ID            string         `json:"id"`
	SequenceID    string         `json:"sequence_id"    validate:"required"`
	Name          string         `json:"name"`
	Type          ActionType     `json:"type"           validate:"required,oneof=app_action"`
	IntegrationID string         `json:"integration_id,omitempty"`
	App           string         `json:"app"            validate:"required"`
	ActionKey     string         `json:"action_key"     validate:"required"`
	Configuration map[string]any `json:"configuration,omitempty"`
	SortOrder     int            `json:"sort_order"`
	Metadata      map[string]any `json:"metadata,omitempty"`

	// TimeoutSeconds bounds a single attempt; zero uses the executor default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" validate:"min=0"`
	// MaxRetries overrides the default attempt budget when positive.
	MaxRetries int `json:"max_retries,omitempty" validate:"min=0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepName is the key under which the action's output is exposed to later steps.
func (a *Action) StepName() string {
	if a.Name != "" {
		return a.Name
	}

	return "step_" + strconv.Itoa(a.SortOrder)
}

// SortActions orders actions by SortOrder, keeping insertion order for ties.
func SortActions(actions []*Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].SortOrder < actions[j].SortOrder
	})
}
