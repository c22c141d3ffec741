package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/sequences/pkg/auth"
	"github.com/dukex/sequences/pkg/channels/gochannel"
	"github.com/dukex/sequences/pkg/eventbus"
	"github.com/dukex/sequences/pkg/intake"
	"github.com/dukex/sequences/pkg/integrations"
	"github.com/dukex/sequences/pkg/integrations/logwrite"
	"github.com/dukex/sequences/pkg/metrics"
	"github.com/dukex/sequences/pkg/persistence/file"
	"github.com/dukex/sequences/pkg/triggerevents"
	"github.com/dukex/sequences/pkg/web"
	"github.com/dukex/sequences/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app   *fiber.App
	store *file.Persistence
}

// setupTestApp serves the API over file persistence with an in-process
// worker, so webhook runs have finished when the response arrives.
func setupTestApp(t *testing.T) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())
	collector := metrics.New()
	eventStore := triggerevents.NewStore(store.TriggerEventRepository(), logger, triggerevents.WithObserver(collector))

	registry := integrations.NewRegistry(logger)
	logwrite.Register(registry, logger)

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, logger)
	t.Cleanup(func() { _ = bus.Close() })

	actions := workflow.NewActionExecutor(registry, store.RunRepository(), logger)
	runs := workflow.NewRunExecutor(store, eventStore, actions, logger)
	require.NoError(t, workflow.NewWorker(bus, runs, logger).Start(ctx))

	service := intake.NewService(
		store.TriggerRepository(),
		eventStore,
		auth.NewAuthenticator(auth.DenyUnknown),
		workflow.NewDispatcher(store, bus, logger),
		logger,
		intake.WithMetrics(collector),
	)

	handlers := web.NewAPIHandlers(store, service, validator.New(validator.WithRequiredStructEnabled()), logger)

	return &testServer{app: web.NewApp(handlers, collector.Handler()), store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, data
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), string(data))

	return out
}

// createWebhookSequence creates a sequence with one log.write action and a
// webhook trigger, returning the trigger response.
func createWebhookSequence(t *testing.T, s *testServer, trigger map[string]any) map[string]any {
	t.Helper()

	resp, body := s.do(t, http.MethodPost, "/sequences", map[string]any{"organization_id": "org-1", "name": "Welcome"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	sequenceID := decode(t, body)["id"].(string)

	resp, body = s.do(t, http.MethodPost, "/sequences/"+sequenceID+"/actions", map[string]any{
		"name":       "note",
		"app":        "log",
		"action_key": "write",
		"sort_order": 1,
		"configuration": map[string]any{
			"message": "signup from {{ trigger.email }}",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	if trigger == nil {
		trigger = map[string]any{}
	}

	trigger["kind"] = "webhook"

	resp, body = s.do(t, http.MethodPost, "/sequences/"+sequenceID+"/triggers", trigger)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	return decode(t, body)
}
