package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/sequences/pkg/metrics"
	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/otelhelper"
	"github.com/dukex/sequences/pkg/persistence"
	"github.com/dukex/sequences/pkg/template"
	"github.com/dukex/sequences/pkg/triggerevents"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultClaimTTL = 10 * time.Minute

type RunExecutor struct {
	runs      persistence.RunRepository
	sequences persistence.SequenceRepository
	events    *triggerevents.Store
	actions   *ActionExecutor
	claimer   Claimer
	claimTTL  time.Duration
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics.Collector
	now       func() time.Time
}

type RunExecutorOption func(*RunExecutor)

func WithClaimer(claimer Claimer, ttl time.Duration) RunExecutorOption {
	return func(r *RunExecutor) {
		r.claimer = claimer
		if ttl > 0 {
			r.claimTTL = ttl
		}
	}
}

func WithRunTracer(tracer trace.Tracer) RunExecutorOption {
	return func(r *RunExecutor) { r.tracer = tracer }
}

func WithRunMetrics(m *metrics.Collector) RunExecutorOption {
	return func(r *RunExecutor) { r.metrics = m }
}

func NewRunExecutor(p persistence.Persistence, events *triggerevents.Store, actions *ActionExecutor, logger *slog.Logger, opts ...RunExecutorOption) *RunExecutor {
	r := &RunExecutor{
		runs:      p.RunRepository(),
		sequences: p.SequenceRepository(),
		events:    events,
		actions:   actions,
		claimer:   NewMemoryClaimer(),
		claimTTL:  DefaultClaimTTL,
		logger:    logger.With("module", "run_executor"),
		tracer:    otelhelper.NoopTracer(),
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Execute claims the run and walks its steps from the first one that has not
// succeeded. A failed step ends the run as failed. When every step succeeds
// the run succeeds and its trigger event is marked processed.
//
// ErrRunClaimed is returned when another worker holds the run. Finished runs
// are left untouched.
func (r *RunExecutor) Execute(ctx context.Context, runID string) error {
	release, claimed, err := r.claimer.TryClaim(ctx, runID, r.claimTTL)
	if err != nil {
		return err
	}

	if !claimed {
		return fmt.Errorf("%w: %s", ErrRunClaimed, runID)
	}
	defer release()

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.run", attribute.String(otelhelper.RunIDKey, runID))
	defer span.End()

	err = r.execute(ctx, runID)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

func (r *RunExecutor) execute(ctx context.Context, runID string) error {
	logger := r.logger.With("run_id", runID)

	run, err := r.runs.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	if run.Status.IsTerminal() {
		logger.DebugContext(ctx, "run already finished", "status", run.Status)

		return nil
	}

	steps, err := r.runs.ListSteps(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load steps: %w", err)
	}

	actions, err := r.sequences.Actions(ctx, run.SequenceID)
	if err != nil {
		return fmt.Errorf("failed to load actions: %w", err)
	}

	byID := make(map[string]*models.Action, len(actions))
	for _, action := range actions {
		byID[action.ID] = action
	}

	if run.Status == models.RunStatusQueued {
		now := r.now()
		run.Status = models.RunStatusRunning
		run.StartedAt = &now

		err = r.runs.UpdateRun(ctx, run)
		if err != nil {
			return fmt.Errorf("failed to start run: %w", err)
		}
	}

	logger.InfoContext(ctx, "executing workflow run", "sequence_id", run.SequenceID, "steps", len(steps))

	scope := template.Scope{
		Trigger: run.Input,
		Steps:   make(map[string]any, len(steps)),
		Run: map[string]any{
			"id":               run.ID,
			"sequence_id":      run.SequenceID,
			"trigger_id":       run.TriggerID,
			"trigger_event_id": run.TriggerEventID,
		},
	}

	for _, step := range steps {
		switch step.Status {
		case models.StepStatusSucceeded:
			scope.Steps[step.Name] = step.ProcessedOutput

			continue
		case models.StepStatusFailed:
			// A previous worker failed the step but stopped before the run.
			return r.finish(ctx, run, scope, step.ErrorMessage)
		case models.StepStatusPending, models.StepStatusRunning:
		}

		result := r.actions.Execute(ctx, run, step, byID[step.ActionID], scope)
		if result.Interrupted() {
			return fmt.Errorf("step %s interrupted: %w", step.ID, result.Err)
		}

		if !result.Succeeded() {
			return r.finish(ctx, run, scope, result.Step.ErrorMessage)
		}

		scope.Steps[step.Name] = result.Output
	}

	return r.finish(ctx, run, scope, "")
}

// finish stores the run outcome and closes the trigger event. An empty
// failure means success.
func (r *RunExecutor) finish(ctx context.Context, run *models.WorkflowRun, scope template.Scope, failure string) error {
	now := r.now()
	run.CompletedAt = &now
	run.Output = scope.Steps

	if failure == "" {
		run.Status = models.RunStatusSucceeded
	} else {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = failure
	}

	err := r.runs.UpdateRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	r.metrics.RunFinished(run.Status)
	r.logger.InfoContext(ctx, "workflow run finished", "run_id", run.ID, "status", run.Status, "error", run.ErrorMessage)

	if run.TriggerEventID == "" {
		return nil
	}

	event, err := r.events.Get(ctx, run.TriggerEventID)
	if err != nil {
		return err
	}

	if run.Status == models.RunStatusSucceeded {
		err = r.events.MarkProcessed(ctx, event, run.ID)
	} else {
		err = r.events.MarkFailed(ctx, event, run.ErrorMessage)
	}

	if errors.Is(err, persistence.ErrEventTerminal) {
		return nil
	}

	return err
}
