package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/sequences/pkg/eventbus"
	"github.com/dukex/sequences/pkg/events"
)

// Worker feeds queued runs from the event bus to a RunExecutor.
type Worker struct {
	bus      eventbus.EventSubscriber
	executor *RunExecutor
	logger   *slog.Logger
}

func NewWorker(bus eventbus.EventSubscriber, executor *RunExecutor, logger *slog.Logger) *Worker {
	return &Worker{
		bus:      bus,
		executor: executor,
		logger:   logger.With("module", "workflow_worker"),
	}
}

// Start registers the handler and begins consuming.
func (w *Worker) Start(ctx context.Context) error {
	err := w.bus.Handle(events.WorkflowRunQueuedEvent, w.handleRunQueued)
	if err != nil {
		return fmt.Errorf("failed to register run handler: %w", err)
	}

	return w.bus.Subscribe(ctx)
}

// handleRunQueued never asks for redelivery. A run that could not be finished
// stays non-terminal and is requeued by the Recoverer.
func (w *Worker) handleRunQueued(ctx context.Context, event any) error {
	queued, ok := event.(*events.WorkflowRunQueued)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	logger := w.logger.With("run_id", queued.RunID, "reason", queued.Reason)

	err := w.executor.Execute(ctx, queued.RunID)
	switch {
	case err == nil:
	case errors.Is(err, ErrRunClaimed):
		logger.DebugContext(ctx, "run is being executed elsewhere")
	default:
		logger.ErrorContext(ctx, "workflow run did not finish", "error", err)
	}

	return nil
}
