// Package persistence provides the data storage abstraction for sequences, triggers and their execution history.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/sequences/pkg/models"
)

type Persistence interface {
	SequenceRepository() SequenceRepository
	TriggerRepository() TriggerRepository
	TriggerEventRepository() TriggerEventRepository
	RunRepository() RunRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// SequenceRepository stores sequences and their action chains.
type SequenceRepository interface {
	Save(ctx context.Context, sequence *models.Sequence) error
	GetByID(ctx context.Context, id string) (*models.Sequence, error)

	// Actions returns the sequence's actions ordered by SortOrder.
	Actions(ctx context.Context, sequenceID string) ([]*models.Action, error)
	SaveAction(ctx context.Context, action *models.Action) error

	// RecordRun increments RunCount and sets LastRunAt.
	RecordRun(ctx context.Context, sequenceID string, at time.Time) error
}

// TriggerRepository stores trigger configuration.
type TriggerRepository interface {
	Save(ctx context.Context, trigger *models.Trigger) error
	GetByID(ctx context.Context, id string) (*models.Trigger, error)
	GetByWebhookToken(ctx context.Context, token string) (*models.Trigger, error)

	// ListByIntegration returns active triggers listening to the integration event.
	ListByIntegration(ctx context.Context, integrationID, triggerKey string) ([]*models.Trigger, error)

	// RecordActivation increments TriggerCount and sets LastTriggeredAt.
	RecordActivation(ctx context.Context, triggerID string, at time.Time) error
}

// TriggerEventRepository stores the audit trail of trigger activations.
type TriggerEventRepository interface {
	Create(ctx context.Context, event *models.TriggerEvent) error
	GetByID(ctx context.Context, id string) (*models.TriggerEvent, error)
	ListByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.TriggerEvent, error)

	// Transition moves a received event to a terminal status. It returns
	// ErrEventTerminal, and changes nothing, when the stored event is no
	// longer received.
	Transition(ctx context.Context, id string, to models.EventStatus, errorMessage string, at time.Time) error

	// AttachRun records the run started for a received event.
	AttachRun(ctx context.Context, id, runID string) error
}

// RunRepository stores workflow runs and their steps.
type RunRepository interface {
	// CreateRun stores the run and all of its steps, or nothing.
	CreateRun(ctx context.Context, run *models.WorkflowRun, steps []*models.WorkflowStep) error
	GetRun(ctx context.Context, id string) (*models.WorkflowRun, error)
	UpdateRun(ctx context.Context, run *models.WorkflowRun) error

	// TouchRun bumps the run's UpdatedAt while it is queued or running.
	// Finished runs are left untouched and no error is returned.
	TouchRun(ctx context.Context, id string) error

	// ListSteps returns the run's steps ordered by Position.
	ListSteps(ctx context.Context, runID string) ([]*models.WorkflowStep, error)

	// UpdateStep persists step if the stored version equals step.Version, then
	// increments step.Version. A mismatch returns ErrVersionConflict.
	UpdateStep(ctx context.Context, step *models.WorkflowStep) error

	// ListStaleRuns returns non-terminal runs last updated before the cutoff.
	ListStaleRuns(ctx context.Context, before time.Time, limit int) ([]*models.WorkflowRun, error)
}
