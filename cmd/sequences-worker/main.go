// Package main provides the sequences worker, which executes queued runs and
// requeues abandoned ones.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/sequences/pkg/cmd"
	"github.com/dukex/sequences/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const defaultMetricsPort = 9092

func main() {
	command := &cli.Command{
		Name:                  "sequences-worker",
		Usage:                 "Execute queued sequence runs",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.IntFlag{
				Name:    "metrics-port",
				Usage:   "Port serving /metrics and /health; 0 disables it",
				Value:   defaultMetricsPort,
				Sources: cli.EnvVars("METRICS_PORT"),
			},
		}, cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("sequences-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Sequences Worker")

			return run(ctx, command, logger)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		log.WithModule("sequences-worker").Error("Sequences Worker stopped", "error", err)
		os.Exit(1)
	}
}
