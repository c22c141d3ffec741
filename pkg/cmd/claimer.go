package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/sequences/pkg/workflow"
)

// NewClaimer returns a redis claimer when redisURL is set, otherwise an
// in-memory one that only guards runs within this process. The returned
// close function is never nil.
//
// nolint:ireturn
func NewClaimer(ctx context.Context, redisURL string, logger *slog.Logger) (workflow.Claimer, func() error, error) {
	if redisURL == "" {
		logger.WarnContext(ctx, "no redis url configured, run claims are process-local")

		return workflow.NewMemoryClaimer(), func() error { return nil }, nil
	}

	claimer, err := workflow.NewRedisClaimerFromURL(ctx, redisURL, logger)
	if err != nil {
		return nil, nil, err
	}

	return claimer, claimer.Close, nil
}
