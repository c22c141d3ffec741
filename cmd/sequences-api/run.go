package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/sequences/pkg/cmd"
	"github.com/dukex/sequences/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func run(ctx context.Context, command *cli.Command, logger *slog.Logger) error {
	rt, err := cmd.NewRuntime(ctx, command, "sequences-api", logger)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	embedded := command.Bool("embedded-worker")
	if command.String("event-bus") == "gochannel" && !embedded {
		logger.WarnContext(ctx, "gochannel event bus only reaches in-process workers, enabling embedded worker")

		embedded = true
	}

	if embedded {
		if err := rt.StartProcessing(ctx, command); err != nil {
			return fmt.Errorf("failed to start embedded worker: %w", err)
		}
	}

	handlers := web.NewAPIHandlers(
		rt.Persistence,
		rt.Engine.Intake,
		validator.New(validator.WithRequiredStructEnabled()),
		logger,
	)
	app := web.NewApp(handlers, rt.Metrics.Handler())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + strconv.Itoa(command.Int("port"))
		logger.InfoContext(ctx, "Starting API server", "addr", addr, "embedded_worker", embedded)

		return app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logger.InfoContext(shutdownCtx, "Shutting down API server")

		return app.ShutdownWithContext(shutdownCtx)
	})

	return g.Wait()
}
