// Package workflow turns trigger activations into durable runs and executes
// their steps.
//
// The Dispatcher stores a queued run with one pending step per action and
// announces it on the event bus. Workers consume the announcement and hand the
// run to a RunExecutor, which walks the steps in order through the
// ActionExecutor. A run stopped halfway resumes at its first step that has not
// succeeded.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/sequences/pkg/eventbus"
	"github.com/dukex/sequences/pkg/events"
	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/otelhelper"
	"github.com/dukex/sequences/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunHandle identifies a run that was queued by Dispatch.
type RunHandle struct {
	RunID      string
	SequenceID string
	Steps      int
}

type Dispatcher struct {
	sequences persistence.SequenceRepository
	triggers  persistence.TriggerRepository
	runs      persistence.RunRepository
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherTracer(tracer trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = tracer }
}

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sequences: p.SequenceRepository(),
		triggers:  p.TriggerRepository(),
		runs:      p.RunRepository(),
		publisher: publisher,
		logger:    logger.With("module", "workflow_dispatcher"),
		tracer:    otelhelper.NoopTracer(),
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch queues a run of the trigger's sequence and returns without waiting
// for any step. Every failure is a *DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger *models.Trigger, event *models.TriggerEvent, payload any) (*RunHandle, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "workflow.dispatch",
		attribute.String(otelhelper.TriggerIDKey, trigger.ID),
		attribute.String(otelhelper.SequenceIDKey, trigger.SequenceID),
	)
	defer span.End()

	fail := func(err error) (*RunHandle, error) {
		derr := &DispatchError{TriggerID: trigger.ID, SequenceID: trigger.SequenceID, Err: err}
		otelhelper.SetError(span, derr)

		return nil, derr
	}

	sequence, err := d.sequences.GetByID(ctx, trigger.SequenceID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return fail(ErrSequenceMissing)
		}

		return fail(err)
	}

	if !sequence.Active {
		return fail(ErrSequenceInactive)
	}

	actions, err := d.sequences.Actions(ctx, sequence.ID)
	if err != nil {
		return fail(err)
	}

	if len(actions) == 0 {
		return fail(ErrNoActions)
	}

	now := d.now()
	run := &models.WorkflowRun{
		ID:         uuid.NewString(),
		SequenceID: sequence.ID,
		TriggerID:  trigger.ID,
		Status:     models.RunStatusQueued,
		Input:      Envelope(trigger, event, payload, now),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if event != nil {
		run.TriggerEventID = event.ID
	}

	steps := make([]*models.WorkflowStep, 0, len(actions))
	for i, action := range actions {
		maxRetries := action.MaxRetries
		if maxRetries <= 0 {
			maxRetries = models.DefaultMaxRetries
		}

		steps = append(steps, &models.WorkflowStep{
			ID:         uuid.NewString(),
			RunID:      run.ID,
			ActionID:   action.ID,
			Name:       action.StepName(),
			Position:   i,
			Status:     models.StepStatusPending,
			MaxRetries: maxRetries,
		})
	}

	err = d.runs.CreateRun(ctx, run, steps)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrQueueFailed, err))
	}

	span.SetAttributes(attribute.String(otelhelper.RunIDKey, run.ID))

	err = d.publisher.Publish(ctx, run.ID, events.WorkflowRunQueued{
		BaseEvent:      events.NewBaseEvent(events.WorkflowRunQueuedEvent, sequence.ID),
		RunID:          run.ID,
		TriggerID:      trigger.ID,
		TriggerEventID: run.TriggerEventID,
		Reason:         events.QueueReasonDispatch,
	})
	if err != nil {
		d.abandon(ctx, run, err)

		return fail(fmt.Errorf("%w: %w", ErrQueueFailed, err))
	}

	if err := d.triggers.RecordActivation(ctx, trigger.ID, now); err != nil {
		d.logger.WarnContext(ctx, "failed to update trigger counters", "trigger_id", trigger.ID, "error", err)
	}

	if err := d.sequences.RecordRun(ctx, sequence.ID, now); err != nil {
		d.logger.WarnContext(ctx, "failed to update sequence counters", "sequence_id", sequence.ID, "error", err)
	}

	d.logger.InfoContext(ctx, "workflow run queued",
		"run_id", run.ID,
		"sequence_id", sequence.ID,
		"trigger_id", trigger.ID,
		"steps", len(steps),
	)

	return &RunHandle{RunID: run.ID, SequenceID: sequence.ID, Steps: len(steps)}, nil
}

// abandon fails a stored run nobody was told about, so the recovery sweep
// does not pick it up after the caller already reported the failure.
func (d *Dispatcher) abandon(ctx context.Context, run *models.WorkflowRun, cause error) {
	now := d.now()
	run.Status = models.RunStatusFailed
	run.ErrorMessage = cause.Error()
	run.CompletedAt = &now
	run.UpdatedAt = now

	if err := d.runs.UpdateRun(ctx, run); err != nil {
		d.logger.ErrorContext(ctx, "failed to abandon unqueued run", "run_id", run.ID, "error", err)
	}
}

// Envelope is the trigger data a run starts from and templates read as
// {{ trigger.* }}.
func Envelope(trigger *models.Trigger, event *models.TriggerEvent, payload any, at time.Time) map[string]any {
	source := models.EventSourceWebhook
	if event != nil {
		source = event.Source
	} else if !trigger.IsWebhook() {
		source = models.EventSourceIntegration
	}

	return map[string]any{
		"source":       string(source),
		"trigger_id":   trigger.ID,
		"trigger_name": trigger.Name,
		"payload":      payload,
		"timestamp":    at.Format(time.RFC3339),
	}
}
