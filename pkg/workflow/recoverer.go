package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/sequences/pkg/eventbus"
	"github.com/dukex/sequences/pkg/events"
	"github.com/dukex/sequences/pkg/metrics"
	"github.com/dukex/sequences/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const (
	DefaultStaleAfter    = 5 * time.Minute
	defaultRecoveryBatch = 100
)

// Recoverer puts runs that stayed queued or running too long back on the
// queue. Workers resume them at the first step that has not succeeded.
type Recoverer struct {
	runs       persistence.RunRepository
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
	metrics    *metrics.Collector
	staleAfter time.Duration
	cron       *cron.Cron
	now        func() time.Time
}

func NewRecoverer(runs persistence.RunRepository, publisher eventbus.EventPublisher, logger *slog.Logger, staleAfter time.Duration, m *metrics.Collector) *Recoverer {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	logger = logger.With("module", "run_recoverer")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))

	return &Recoverer{
		runs:       runs,
		publisher:  publisher,
		logger:     logger,
		metrics:    m,
		staleAfter: staleAfter,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Start schedules a sweep every interval until ctx is done.
func (r *Recoverer) Start(ctx context.Context, interval time.Duration) error {
	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		recovered, err := r.Sweep(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "recovery sweep failed", "error", err)

			return
		}

		if recovered > 0 {
			r.logger.InfoContext(ctx, "recovery sweep requeued runs", "count", recovered)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid recovery interval %s: %w", interval, err)
	}

	r.cron.Start()

	go func() {
		<-ctx.Done()
		<-r.cron.Stop().Done()
	}()

	return nil
}

// Sweep requeues stale runs once and returns how many were published.
func (r *Recoverer) Sweep(ctx context.Context) (int, error) {
	stale, err := r.runs.ListStaleRuns(ctx, r.now().Add(-r.staleAfter), defaultRecoveryBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale runs: %w", err)
	}

	recovered := 0

	for _, run := range stale {
		err := r.publisher.Publish(ctx, run.ID, events.WorkflowRunQueued{
			BaseEvent:      events.NewBaseEvent(events.WorkflowRunQueuedEvent, run.SequenceID),
			RunID:          run.ID,
			TriggerID:      run.TriggerID,
			TriggerEventID: run.TriggerEventID,
			Reason:         events.QueueReasonRecovery,
		})
		if err != nil {
			return recovered, fmt.Errorf("failed to requeue run %s: %w", run.ID, err)
		}

		// Touch the run so the next sweep waits another full period. A run
		// finished in the meantime keeps its final state.
		err = r.runs.TouchRun(ctx, run.ID)
		if err != nil {
			r.logger.WarnContext(ctx, "failed to touch requeued run", "run_id", run.ID, "error", err)
		}

		r.metrics.RunRecovered()
		recovered++
	}

	return recovered, nil
}
