// Package models defines the configuration and execution records of the automation engine.
package models

import "time"

// Sequence is a named automation owned by an organization. Its action chain is
// loaded through the sequence repository, ordered by Action.SortOrder.
type Sequence struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id" validate:"required"`
	Name           string     `json:"name"            validate:"required,min=1"`
	Description    string     `json:"description,omitempty"`
	Active         bool       `json:"active"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	RunCount       int64      `json:"run_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
