package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/sequences/pkg/eventbus"
	"github.com/dukex/sequences/pkg/metrics"
	"github.com/dukex/sequences/pkg/otelhelper"
	"github.com/dukex/sequences/pkg/persistence"
	"github.com/urfave/cli/v3"
)

// Runtime holds the process-wide resources built from CommonFlags.
type Runtime struct {
	Persistence persistence.Persistence
	EventBus    *eventbus.WatermillEventBus
	Metrics     *metrics.Collector
	Engine      *Engine

	logger  *slog.Logger
	closers []func(ctx context.Context) error
}

// NewRuntime opens every resource named by the command's flags. On error the
// resources opened so far are closed.
func NewRuntime(ctx context.Context, command *cli.Command, serviceName string, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Metrics: metrics.New(), logger: logger}

	if err := rt.open(ctx, command, serviceName); err != nil {
		rt.Close(ctx)

		return nil, err
	}

	return rt, nil
}

func (rt *Runtime) open(ctx context.Context, command *cli.Command, serviceName string) error {
	logger := rt.logger

	cfg, err := EngineConfigFromFlags(command)
	if err != nil {
		return err
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName, command.Bool("otel-enabled"))
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	rt.closers = append(rt.closers, shutdown)

	rt.Persistence, err = NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	rt.closers = append(rt.closers, rt.Persistence.Close)

	rt.EventBus, err = NewEventBus(command.String("event-bus"), serviceName, command.Bool("otel-enabled"), logger,
		eventbus.WithHandlerConcurrency(command.Int("handler-concurrency")))
	if err != nil {
		return err
	}

	rt.closers = append(rt.closers, func(context.Context) error { return rt.EventBus.Close() })

	claimer, closeClaimer, err := NewClaimer(ctx, command.String("redis-url"), logger)
	if err != nil {
		return err
	}

	rt.closers = append(rt.closers, func(context.Context) error { return closeClaimer() })

	cfg.Claimer = claimer
	cfg.Tracer = tracer
	cfg.Metrics = rt.Metrics

	rt.Engine = NewEngine(rt.Persistence, rt.EventBus, NewRegistry(logger), logger, cfg)

	return nil
}

// StartProcessing subscribes the run worker and schedules the recovery sweep.
func (rt *Runtime) StartProcessing(ctx context.Context, command *cli.Command) error {
	if err := rt.Engine.Worker.Start(ctx); err != nil {
		return err
	}

	interval := command.Duration("recovery-interval")
	if interval <= 0 {
		rt.logger.WarnContext(ctx, "run recovery sweep disabled")

		return nil
	}

	return rt.Engine.Recoverer.Start(ctx, interval)
}

// Close releases resources in reverse order of opening.
func (rt *Runtime) Close(ctx context.Context) {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		rt.logger.ErrorContext(ctx, "Failed to close resources", "error", err)
	}
}
