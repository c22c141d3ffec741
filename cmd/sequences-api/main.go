// Package main provides the sequences API server: webhook intake and the
// admin API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/sequences/pkg/cmd"
	"github.com/dukex/sequences/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "sequences-api",
		Usage:                 "Receive trigger activations and manage sequences",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:    "embedded-worker",
				Usage:   "Also execute runs in this process (required with the gochannel event bus)",
				Sources: cli.EnvVars("EMBEDDED_WORKER"),
			},
		}, cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Sequences API")

			return run(ctx, command, logger)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		log.WithModule("api").Error("Sequences API stopped", "error", err)
		os.Exit(1)
	}
}
