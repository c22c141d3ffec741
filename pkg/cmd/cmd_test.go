package cmd_test

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/sequences/pkg/cmd"
	"github.com/dukex/sequences/pkg/intake"
	"github.com/dukex/sequences/pkg/integrations"
	"github.com/dukex/sequences/pkg/metrics"
	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/persistence/file"
	"github.com/dukex/sequences/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func intakeRequest(body string) intake.WebhookRequest {
	header := http.Header{}
	header.Set("Content-Type", "application/json")

	return intake.WebhookRequest{
		Method:     http.MethodPost,
		URL:        "http://localhost/webhooks/tok-1",
		RemoteAddr: "127.0.0.1",
		Header:     header,
		Body:       []byte(body),
	}
}

func TestNewPersistence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name        string
		url         string
		expectError error
	}{
		{name: "file url", url: "file://" + filepath.Join(dir, "data")},
		{name: "no scheme", url: dir, expectError: cmd.ErrUnsupportedDatabase},
		{name: "empty file path", url: "file://", expectError: cmd.ErrUnsupportedDatabase},
		{name: "unknown provider", url: "mongodb://localhost/db", expectError: cmd.ErrUnsupportedDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := cmd.NewPersistence(context.Background(), testLogger(), tt.url)
			if tt.expectError != nil {
				require.ErrorIs(t, err, tt.expectError)

				return
			}

			require.NoError(t, err)
			assert.IsType(t, &file.Persistence{}, p)
			require.NoError(t, p.Close(context.Background()))
		})
	}
}

func TestNewEventBus(t *testing.T) {
	t.Parallel()

	bus, err := cmd.NewEventBus("gochannel", "sequences-test", false, testLogger())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = cmd.NewEventBus("rabbitmq", "sequences-test", false, testLogger())
	require.ErrorIs(t, err, cmd.ErrUnsupportedEventBus)
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	reg := cmd.NewRegistry(testLogger())

	assert.ElementsMatch(t, []integrations.Key{
		{App: "http", ActionKey: "request"},
		{App: "log", ActionKey: "write"},
	}, reg.Keys())
}

func TestNewClaimer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	claimer, closeFn, err := cmd.NewClaimer(ctx, "", testLogger())
	require.NoError(t, err)
	assert.IsType(t, &workflow.MemoryClaimer{}, claimer)
	require.NoError(t, closeFn())

	server := miniredis.RunT(t)

	claimer, closeFn, err = cmd.NewClaimer(ctx, "redis://"+server.Addr(), testLogger())
	require.NoError(t, err)
	assert.IsType(t, &workflow.RedisClaimer{}, claimer)

	release, claimed, err := claimer.TryClaim(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	release()
	require.NoError(t, closeFn())

	_, _, err = cmd.NewClaimer(ctx, "not a url", testLogger())
	require.Error(t, err)
}

func TestNewEngine_RunsWebhookEndToEnd(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := testLogger()
	store := file.NewPersistence(t.TempDir())

	bus, err := cmd.NewEventBus("gochannel", "sequences-test", false, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	collector := metrics.New()
	engine := cmd.NewEngine(store, bus, cmd.NewRegistry(logger), logger, cmd.EngineConfig{
		StepTimeout: time.Second,
		Metrics:     collector,
	})
	require.NoError(t, engine.Worker.Start(ctx))

	sequence := &models.Sequence{ID: "seq-1", OrganizationID: "org-1", Name: "Welcome", Active: true}
	require.NoError(t, store.SequenceRepository().Save(ctx, sequence))
	require.NoError(t, store.SequenceRepository().SaveAction(ctx, &models.Action{
		ID:            "act-1",
		SequenceID:    sequence.ID,
		Type:          models.ActionTypeAppAction,
		App:           "log",
		ActionKey:     "write",
		Configuration: map[string]any{"message": "hello {{ trigger.name }}"},
	}))

	trigger := &models.Trigger{ID: "trg-1", SequenceID: sequence.ID, Kind: models.TriggerKindWebhook, WebhookToken: "tok-1", Active: true}
	require.NoError(t, store.TriggerRepository().Save(ctx, trigger))

	resolved, err := engine.Intake.ResolveWebhookTrigger(ctx, "tok-1")
	require.NoError(t, err)

	outcome := engine.Intake.HandleWebhook(ctx, intakeRequest(`{"name":"ada"}`), resolved)
	require.NoError(t, outcome.Err)
	require.NotNil(t, outcome.Run)

	assert.Eventually(t, func() bool {
		event, err := engine.Events.Get(ctx, outcome.Event.ID)

		return err == nil && event.Status == models.EventStatusProcessed
	}, 5*time.Second, 20*time.Millisecond)

	run, err := store.RunRepository().GetRun(ctx, outcome.Run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, run.Status)
}
