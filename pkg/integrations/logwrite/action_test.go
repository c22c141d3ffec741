package logwrite_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/sequences/pkg/integrations"
	"github.com/dukex/sequences/pkg/integrations/logwrite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_Execute(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	registry := integrations.NewRegistry(logger)
	logwrite.Register(registry, logger)

	handler, err := registry.Lookup(logwrite.App, logwrite.ActionKey)
	require.NoError(t, err)

	out, err := handler.Execute(context.Background(), integrations.Invocation{Arguments: map[string]any{
		"message": "new order",
		"level":   "warn",
		"fields":  map[string]any{"order_id": "o-1"},
	}})
	require.NoError(t, err)

	assert.Equal(t, "new order", out["message"])
	assert.Equal(t, "warn", out["level"])
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `msg="new order"`)
	assert.Contains(t, buf.String(), "order_id=o-1")
}

func TestAction_Execute_Defaults(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	action := logwrite.NewAction(slog.New(slog.NewTextHandler(&buf, nil)))

	out, err := action.Execute(context.Background(), integrations.Invocation{})
	require.NoError(t, err)
	assert.Equal(t, "info", out["level"])
	assert.Contains(t, buf.String(), "sequence log action")
}
