package cmd

import (
	"fmt"
	"time"

	"github.com/dukex/sequences/pkg/auth"
	"github.com/dukex/sequences/pkg/eventbus"
	"github.com/dukex/sequences/pkg/intake"
	"github.com/dukex/sequences/pkg/workflow"
	"github.com/urfave/cli/v3"
)

// CommonFlags are understood by every sequences binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file://<dir> or postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (kafka, gochannel)",
			Value:   "kafka",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.IntFlag{
			Name:    "handler-concurrency",
			Usage:   "Queued runs a process executes at once",
			Value:   eventbus.DefaultHandlerConcurrency,
			Sources: cli.EnvVars("HANDLER_CONCURRENCY"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for run claims shared between workers; empty keeps claims in process",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "unknown-auth-policy",
			Usage:   "How webhooks with an unrecognized auth type are treated (deny, allow)",
			Value:   "deny",
			Sources: cli.EnvVars("UNKNOWN_AUTH_POLICY"),
		},
		&cli.DurationFlag{
			Name:    "default-step-timeout",
			Usage:   "Per-attempt timeout of actions that do not set one",
			Value:   workflow.DefaultStepTimeout,
			Sources: cli.EnvVars("DEFAULT_STEP_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "trigger-cache-ttl",
			Usage:   "How long resolved webhook triggers are cached",
			Value:   intake.DefaultTriggerCacheTTL,
			Sources: cli.EnvVars("TRIGGER_CACHE_TTL"),
		},
		&cli.DurationFlag{
			Name:    "recovery-interval",
			Usage:   "How often stale runs are requeued; 0 disables the sweep",
			Value:   time.Minute,
			Sources: cli.EnvVars("RECOVERY_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:    "stale-run-after",
			Usage:   "Age after which an unfinished run is considered abandoned",
			Value:   workflow.DefaultStaleAfter,
			Sources: cli.EnvVars("STALE_RUN_AFTER"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// EngineConfigFromFlags reads the engine settings of CommonFlags. Claimer,
// Tracer and Metrics are left for the caller.
func EngineConfigFromFlags(command *cli.Command) (EngineConfig, error) {
	policy, err := auth.ParseUnknownPolicy(command.String("unknown-auth-policy"))
	if err != nil {
		return EngineConfig{}, fmt.Errorf("invalid --unknown-auth-policy: %w", err)
	}

	return EngineConfig{
		UnknownAuthPolicy: policy,
		StepTimeout:       command.Duration("default-step-timeout"),
		TriggerCacheTTL:   command.Duration("trigger-cache-ttl"),
		StaleRunAfter:     command.Duration("stale-run-after"),
		ClaimTTL:          workflow.DefaultClaimTTL,
	}, nil
}
