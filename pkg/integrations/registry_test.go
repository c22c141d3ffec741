package integrations_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/sequences/pkg/integrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry() *integrations.Registry {
	return integrations.NewRegistry(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestRegistry_Lookup(t *testing.T) {
	t.Parallel()

	registry := newRegistry()
	registry.Register("crm", "create_contact", integrations.HandlerFunc(
		func(_ context.Context, inv integrations.Invocation) (integrations.Output, error) {
			return integrations.Output{"email": inv.Arguments["email"]}, nil
		}))

	handler, err := registry.Lookup("crm", "create_contact")
	require.NoError(t, err)

	out, err := handler.Execute(context.Background(), integrations.Invocation{Arguments: map[string]any{"email": "a@b.c"}})
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", out["email"])

	_, err = registry.Lookup("crm", "delete_contact")
	require.ErrorIs(t, err, integrations.ErrHandlerNotFound)
	assert.Contains(t, err.Error(), "crm.delete_contact")
}

func TestRegistry_Keys(t *testing.T) {
	t.Parallel()

	registry := newRegistry()
	noop := integrations.HandlerFunc(func(context.Context, integrations.Invocation) (integrations.Output, error) {
		return nil, nil
	})

	registry.Register("log", "write", noop)
	registry.Register("http", "request", noop)
	registry.Register("http", "request", noop)

	assert.Equal(t, []integrations.Key{
		{App: "http", ActionKey: "request"},
		{App: "log", ActionKey: "write"},
	}, registry.Keys())
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	base := errors.New("rejected")

	assert.Nil(t, integrations.Permanent(nil))
	assert.False(t, integrations.IsPermanent(base))

	wrapped := fmt.Errorf("calling crm: %w", integrations.Permanent(base))
	assert.True(t, integrations.IsPermanent(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, "calling crm: rejected", wrapped.Error())
}
