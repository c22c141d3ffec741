package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/sequences/pkg/integrations"
	"github.com/dukex/sequences/pkg/metrics"
	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/otelhelper"
	"github.com/dukex/sequences/pkg/persistence"
	"github.com/dukex/sequences/pkg/template"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultStepTimeout = 30 * time.Second

// StepResult is what a step ended with. Err is a *StepExecutionError when the
// step failed, or the persistence error that stopped it.
type StepResult struct {
	Step   *models.WorkflowStep
	Output map[string]any
	Err    error
}

// Succeeded reports whether the step finished successfully.
func (r StepResult) Succeeded() bool {
	return r.Err == nil && r.Step.Status == models.StepStatusSucceeded
}

// Interrupted reports whether the step stopped without reaching a terminal
// status, leaving it for another attempt of the run.
func (r StepResult) Interrupted() bool {
	return r.Err != nil && !IsStepExecutionError(r.Err)
}

type ActionExecutor struct {
	registry   *integrations.Registry
	runs       persistence.RunRepository
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *metrics.Collector
	timeout    time.Duration
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

type ExecutorOption func(*ActionExecutor)

// WithStepTimeout sets the per-attempt timeout of actions that do not set one.
func WithStepTimeout(timeout time.Duration) ExecutorOption {
	return func(e *ActionExecutor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithBackOff replaces the delay policy between attempts.
func WithBackOff(newBackOff func() backoff.BackOff) ExecutorOption {
	return func(e *ActionExecutor) { e.newBackOff = newBackOff }
}

func WithExecutorTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *ActionExecutor) { e.tracer = tracer }
}

func WithExecutorMetrics(m *metrics.Collector) ExecutorOption {
	return func(e *ActionExecutor) { e.metrics = m }
}

func NewActionExecutor(registry *integrations.Registry, runs persistence.RunRepository, logger *slog.Logger, opts ...ExecutorOption) *ActionExecutor {
	e := &ActionExecutor{
		registry:   registry,
		runs:       runs,
		logger:     logger.With("module", "action_executor"),
		tracer:     otelhelper.NoopTracer(),
		timeout:    DefaultStepTimeout,
		newBackOff: defaultBackOff,
		now:        func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0

	return b
}

// Execute runs one step of run against its action. The step moves
// pending -> running -> succeeded|failed, each change persisted with a version
// check. Failed attempts are retried while RetryCount < MaxRetries unless the
// error is permanent.
func (e *ActionExecutor) Execute(ctx context.Context, run *models.WorkflowRun, step *models.WorkflowStep, action *models.Action, scope template.Scope) StepResult {
	logger := e.logger.With("run_id", run.ID, "step_id", step.ID, "step", step.Name)

	operation := "unknown"
	if action != nil {
		operation = integrations.Key{App: action.App, ActionKey: action.ActionKey}.String()
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepNameKey, step.Name),
		attribute.String(otelhelper.OperationKey, operation),
	)
	defer span.End()

	if step.MaxRetries <= 0 {
		step.MaxRetries = models.DefaultMaxRetries
	}

	started := e.now()
	step.Status = models.StepStatusRunning
	if step.StartedAt == nil {
		step.StartedAt = &started
	}

	if action == nil {
		return e.fail(ctx, logger, step, operation, ErrorCodeActionNotFound, fmt.Errorf("%w: %s", ErrActionMissing, step.ActionID))
	}

	input, err := template.RenderMap(action.Configuration, scope)
	if err != nil {
		step.InputData = action.Configuration

		return e.fail(ctx, logger, step, operation, ErrorCodeTemplate, err)
	}

	step.InputData = input

	err = e.save(ctx, step)
	if err != nil {
		otelhelper.SetError(span, err)

		return StepResult{Step: step, Err: err}
	}

	handler, err := e.registry.Lookup(action.App, action.ActionKey)
	if err != nil {
		return e.fail(ctx, logger, step, operation, ErrorCodeActionNotFound, err)
	}

	timeout := e.timeout
	if action.TimeoutSeconds > 0 {
		timeout = time.Duration(action.TimeoutSeconds) * time.Second
	}

	invocation := integrations.Invocation{IntegrationID: action.IntegrationID, Arguments: input}

	var (
		output   integrations.Output
		lastErr  error
		storeErr error
	)

	attempt := func() error {
		out, err := e.invoke(ctx, handler, invocation, timeout, step.RetryCount+1)
		if err == nil {
			e.metrics.StepAttempt(operation, "success")
			output = out

			return nil
		}

		e.metrics.StepAttempt(operation, "error")
		lastErr = err
		step.RetryCount++

		if integrations.IsPermanent(err) || step.RetryCount >= step.MaxRetries {
			return backoff.Permanent(err)
		}

		storeErr = e.save(ctx, step)
		if storeErr != nil {
			return backoff.Permanent(storeErr)
		}

		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.WarnContext(ctx, "step attempt failed, retrying",
			"attempt", step.RetryCount,
			"max_retries", step.MaxRetries,
			"wait", wait,
			"error", err,
		)
	}

	err = backoff.RetryNotify(attempt, backoff.WithContext(e.newBackOff(), ctx), notify)

	switch {
	case storeErr != nil:
		otelhelper.SetError(span, storeErr)

		return StepResult{Step: step, Err: storeErr}
	case err != nil && ctx.Err() != nil:
		// Shutdown. The step stays running and resumes with the run.
		return StepResult{Step: step, Err: ctx.Err()}
	case err != nil:
		code := ErrorCodeIntegration
		if errors.Is(lastErr, context.DeadlineExceeded) && ctx.Err() == nil {
			code = ErrorCodeTimeout
		}

		return e.fail(ctx, logger, step, operation, code, lastErr)
	}

	return e.succeed(ctx, logger, step, operation, output)
}

// invoke runs a single attempt under its own timeout. A panicking handler
// counts as a failed attempt.
func (e *ActionExecutor) invoke(ctx context.Context, handler integrations.Handler, inv integrations.Invocation, timeout time.Duration, attempt int) (out integrations.Output, err error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step.attempt", attribute.Int(otelhelper.AttemptKey, attempt))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("integration handler panicked: %v", r)
		}

		if err != nil {
			otelhelper.SetError(span, err)
		}
	}()

	out, err = handler.Execute(ctx, inv)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	return out, err
}

func (e *ActionExecutor) succeed(ctx context.Context, logger *slog.Logger, step *models.WorkflowStep, operation string, output integrations.Output) StepResult {
	processed, err := normalize(output)
	if err != nil {
		return e.fail(ctx, logger, step, operation, ErrorCodeIntegration, fmt.Errorf("unserializable output: %w", err))
	}

	e.finish(step, models.StepStatusSucceeded)
	step.OutputData = output
	step.ProcessedOutput = processed
	step.ErrorCode = ""
	step.ErrorMessage = ""

	err = e.save(ctx, step)
	if err != nil {
		return StepResult{Step: step, Err: err}
	}

	e.metrics.StepFinished(operation, step.Status, time.Duration(step.DurationMs)*time.Millisecond)
	logger.InfoContext(ctx, "step succeeded", "operation", operation, "attempts", step.RetryCount+1, "duration_ms", step.DurationMs)

	return StepResult{Step: step, Output: processed}
}

func (e *ActionExecutor) fail(ctx context.Context, logger *slog.Logger, step *models.WorkflowStep, operation, code string, cause error) StepResult {
	e.finish(step, models.StepStatusFailed)
	step.ErrorCode = code
	step.ErrorMessage = cause.Error()

	stepErr := &StepExecutionError{
		StepID:    step.ID,
		Operation: operation,
		Code:      code,
		Attempts:  max(step.RetryCount, 1),
		Err:       cause,
	}

	trace.SpanFromContext(ctx).RecordError(stepErr)

	err := e.save(ctx, step)
	if err != nil {
		return StepResult{Step: step, Err: err}
	}

	e.metrics.StepFinished(operation, step.Status, time.Duration(step.DurationMs)*time.Millisecond)
	logger.ErrorContext(ctx, "step failed", "operation", operation, "error_code", code, "retry_count", step.RetryCount, "error", cause)

	return StepResult{Step: step, Err: stepErr}
}

func (e *ActionExecutor) finish(step *models.WorkflowStep, status models.StepStatus) {
	now := e.now()
	step.Status = status
	step.CompletedAt = &now

	if step.StartedAt != nil {
		step.DurationMs = now.Sub(*step.StartedAt).Milliseconds()
	}
}

func (e *ActionExecutor) save(ctx context.Context, step *models.WorkflowStep) error {
	err := e.runs.UpdateStep(ctx, step)
	if err != nil {
		return fmt.Errorf("failed to update step %s: %w", step.ID, err)
	}

	return nil
}

// normalize converts handler output into plain JSON values, the shape later
// templates and stored records see.
func normalize(output integrations.Output) (map[string]any, error) {
	if output == nil {
		return map[string]any{}, nil
	}

	raw, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}

	var processed map[string]any

	err = json.Unmarshal(raw, &processed)
	if err != nil {
		return nil, err
	}

	return processed, nil
}
