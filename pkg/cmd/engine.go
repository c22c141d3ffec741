package cmd

import (
	"log/slog"
	"time"

	"github.com/dukex/sequences/pkg/auth"
	"github.com/dukex/sequences/pkg/eventbus"
	"github.com/dukex/sequences/pkg/intake"
	"github.com/dukex/sequences/pkg/integrations"
	"github.com/dukex/sequences/pkg/metrics"
	"github.com/dukex/sequences/pkg/otelhelper"
	"github.com/dukex/sequences/pkg/persistence"
	"github.com/dukex/sequences/pkg/triggerevents"
	"github.com/dukex/sequences/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// EngineConfig carries the flag values the engine is built from.
type EngineConfig struct {
	UnknownAuthPolicy auth.UnknownPolicy
	StepTimeout       time.Duration
	TriggerCacheTTL   time.Duration
	StaleRunAfter     time.Duration
	Claimer           workflow.Claimer
	ClaimTTL          time.Duration
	Tracer            trace.Tracer
	Metrics           *metrics.Collector
}

// Engine is the assembled pipeline shared by the API and worker processes.
type Engine struct {
	Events     *triggerevents.Store
	Intake     *intake.Service
	Dispatcher *workflow.Dispatcher
	Runs       *workflow.RunExecutor
	Worker     *workflow.Worker
	Recoverer  *workflow.Recoverer
}

func NewEngine(
	p persistence.Persistence,
	bus eventbus.EventBus,
	registry *integrations.Registry,
	logger *slog.Logger,
	cfg EngineConfig,
) *Engine {
	if cfg.Tracer == nil {
		cfg.Tracer = otelhelper.NoopTracer()
	}

	events := triggerevents.NewStore(p.TriggerEventRepository(), logger, triggerevents.WithObserver(cfg.Metrics))

	dispatcher := workflow.NewDispatcher(p, bus, logger, workflow.WithDispatcherTracer(cfg.Tracer))

	actions := workflow.NewActionExecutor(registry, p.RunRepository(), logger,
		workflow.WithStepTimeout(cfg.StepTimeout),
		workflow.WithExecutorTracer(cfg.Tracer),
		workflow.WithExecutorMetrics(cfg.Metrics),
	)

	runOpts := []workflow.RunExecutorOption{
		workflow.WithRunTracer(cfg.Tracer),
		workflow.WithRunMetrics(cfg.Metrics),
	}
	if cfg.Claimer != nil {
		runOpts = append(runOpts, workflow.WithClaimer(cfg.Claimer, cfg.ClaimTTL))
	}

	runs := workflow.NewRunExecutor(p, events, actions, logger, runOpts...)

	intakeOpts := []intake.Option{
		intake.WithTracer(cfg.Tracer),
		intake.WithMetrics(cfg.Metrics),
	}
	if cfg.TriggerCacheTTL > 0 {
		intakeOpts = append(intakeOpts, intake.WithTriggerCacheTTL(cfg.TriggerCacheTTL))
	}

	return &Engine{
		Events:     events,
		Intake:     intake.NewService(p.TriggerRepository(), events, auth.NewAuthenticator(cfg.UnknownAuthPolicy), dispatcher, logger, intakeOpts...),
		Dispatcher: dispatcher,
		Runs:       runs,
		Worker:     workflow.NewWorker(bus, runs, logger),
		Recoverer:  workflow.NewRecoverer(p.RunRepository(), bus, logger, cfg.StaleRunAfter, cfg.Metrics),
	}
}
