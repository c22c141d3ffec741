package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/sequences/pkg/cmd"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func run(ctx context.Context, command *cli.Command, logger *slog.Logger) error {
	if command.String("event-bus") == "gochannel" {
		return errors.New("the gochannel event bus cannot reach a separate worker; run sequences-api with --embedded-worker instead")
	}

	rt, err := cmd.NewRuntime(ctx, command, "sequences-worker", logger)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	if err := rt.StartProcessing(ctx, command); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	logger.InfoContext(ctx, "Worker consuming queued runs")

	g, ctx := errgroup.WithContext(ctx)

	if port := command.Int("metrics-port"); port > 0 {
		server := newStatusServer(":"+strconv.Itoa(port), rt)

		g.Go(func() error {
			logger.InfoContext(ctx, "Starting status server", "addr", server.Addr)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})

		g.Go(func() error {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.InfoContext(context.Background(), "Shutting down worker")

		return nil
	})

	return g.Wait()
}

func newStatusServer(addr string, rt *cmd.Runtime) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", rt.Metrics.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := rt.Persistence.HealthCheck(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
