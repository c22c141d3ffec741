// Package cmd provides common initialization functions for the sequences binaries.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/sequences/pkg/persistence"
	"github.com/dukex/sequences/pkg/persistence/file"
	"github.com/dukex/sequences/pkg/persistence/postgresql"
)

var ErrUnsupportedDatabase = errors.New("unsupported database url")

// NewPersistence opens the store named by databaseURL: file://<dir> or
// postgres://... (postgresql:// is accepted too).
//
// nolint:ireturn
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDatabase, databaseURL)
	}

	switch provider {
	case "file":
		if rest == "" {
			return nil, fmt.Errorf("%w: file url needs a directory", ErrUnsupportedDatabase)
		}

		logger.InfoContext(ctx, "using file persistence", "root", rest)

		return file.NewPersistence(rest), nil
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return p, nil
	default:
		return nil, fmt.Errorf("%w: provider %q", ErrUnsupportedDatabase, provider)
	}
}
