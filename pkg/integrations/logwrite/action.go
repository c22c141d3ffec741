// Package logwrite provides the log.write integration operation, which writes
// its arguments as one structured log line.
package logwrite

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/sequences/pkg/integrations"
)

const (
	App       = "log"
	ActionKey = "write"
)

type Action struct {
	logger *slog.Logger
}

func NewAction(logger *slog.Logger) *Action {
	return &Action{logger: logger.With("action_type", "log")}
}

// Register adds the operation to registry.
func Register(registry *integrations.Registry, logger *slog.Logger) {
	registry.Register(App, ActionKey, NewAction(logger))
}

// Execute logs arguments["message"] at arguments["level"] (default info) with
// arguments["fields"] as attributes, and echoes them back.
func (a *Action) Execute(ctx context.Context, inv integrations.Invocation) (integrations.Output, error) {
	message, _ := inv.Arguments["message"].(string)
	if message == "" {
		message = "sequence log action"
	}

	level := parseLevel(inv.Arguments["level"])

	var attrs []any
	if fields, ok := inv.Arguments["fields"].(map[string]any); ok {
		for key, value := range fields {
			attrs = append(attrs, key, value)
		}
	}

	a.logger.Log(ctx, level, message, attrs...)

	return integrations.Output{
		"message": message,
		"level":   strings.ToLower(level.String()),
		"fields":  inv.Arguments["fields"],
	}, nil
}

func parseLevel(v any) slog.Level {
	s, _ := v.(string)

	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
