package intake_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/sequences/pkg/auth"
	"github.com/dukex/sequences/pkg/channels/gochannel"
	"github.com/dukex/sequences/pkg/eventbus"
	"github.com/dukex/sequences/pkg/intake"
	"github.com/dukex/sequences/pkg/integrations"
	"github.com/dukex/sequences/pkg/mocks"
	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/persistence"
	"github.com/dukex/sequences/pkg/persistence/file"
	"github.com/dukex/sequences/pkg/triggerevents"
	"github.com/dukex/sequences/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type pipeline struct {
	store   *file.Persistence
	events  *triggerevents.Store
	service *intake.Service
	calls   int
}

// newPipeline wires intake to a worker over a blocking in-process bus, so a
// dispatched run has finished when HandleWebhook returns.
func newPipeline(t *testing.T, dispatcher intake.Dispatcher) *pipeline {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())
	eventStore := triggerevents.NewStore(store.TriggerEventRepository(), logger)

	p := &pipeline{store: store, events: eventStore}

	registry := integrations.NewRegistry(logger)
	registry.Register("crm", "create_contact", integrations.HandlerFunc(func(_ context.Context, inv integrations.Invocation) (integrations.Output, error) {
		p.calls++

		return integrations.Output{"email": inv.Arguments["email"]}, nil
	}))

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, logger)
	t.Cleanup(func() { _ = bus.Close() })

	actions := workflow.NewActionExecutor(registry, store.RunRepository(), logger,
		workflow.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	runs := workflow.NewRunExecutor(store, eventStore, actions, logger)
	require.NoError(t, workflow.NewWorker(bus, runs, logger).Start(ctx))

	if dispatcher == nil {
		dispatcher = workflow.NewDispatcher(store, bus, logger)
	}

	p.service = intake.NewService(store.TriggerRepository(), eventStore, auth.NewAuthenticator(auth.DenyUnknown), dispatcher, logger,
		intake.WithTriggerCacheTTL(time.Minute))

	return p
}

func (p *pipeline) seed(t *testing.T, configure func(*models.Trigger)) *models.Trigger {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, p.store.SequenceRepository().Save(ctx, &models.Sequence{ID: "seq-1", OrganizationID: "org-1", Name: "Welcome", Active: true}))
	require.NoError(t, p.store.SequenceRepository().SaveAction(ctx, &models.Action{
		ID:            "act-1",
		SequenceID:    "seq-1",
		Name:          "contact",
		Type:          models.ActionTypeAppAction,
		App:           "crm",
		ActionKey:     "create_contact",
		SortOrder:     1,
		Configuration: map[string]any{"email": "{{ trigger.email }}"},
	}))

	trigger := &models.Trigger{
		ID:           "trg-1",
		SequenceID:   "seq-1",
		Name:         "Signup hook",
		Kind:         models.TriggerKindWebhook,
		WebhookToken: "tok-1",
		Active:       true,
	}

	if configure != nil {
		configure(trigger)
	}

	require.NoError(t, p.store.TriggerRepository().Save(ctx, trigger))

	return trigger
}

func (p *pipeline) eventsOf(t *testing.T, triggerID string) []*models.TriggerEvent {
	t.Helper()

	events, err := p.store.TriggerEventRepository().ListByTrigger(context.Background(), triggerID, 100)
	require.NoError(t, err)

	return events
}

func webhook(body string, kv ...string) intake.WebhookRequest {
	header := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		header.Set(kv[i], kv[i+1])
	}

	return intake.WebhookRequest{
		Method:     http.MethodPost,
		URL:        "https://hooks.example.com/webhooks/tok-1",
		RemoteAddr: "10.0.0.7:51234",
		Header:     header,
		Body:       []byte(body),
	}
}

func TestHandleWebhook_OpenTriggerIsProcessed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newPipeline(t, nil)
	trigger := p.seed(t, nil)

	outcome := p.service.HandleWebhook(ctx, webhook(`{"x":1,"email":"ada@example.com"}`), trigger)

	require.NoError(t, outcome.Err)
	assert.Equal(t, intake.StatusDispatched, outcome.Status)
	require.NotNil(t, outcome.Event)
	require.NotNil(t, outcome.Run)
	assert.Equal(t, 1, p.calls)

	event, err := p.events.Get(ctx, outcome.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusProcessed, event.Status)
	assert.Equal(t, outcome.Run.RunID, event.RunID)
	assert.Equal(t, map[string]any{"x": float64(1), "email": "ada@example.com"}, event.EventData)
}

func TestHandleWebhook_MissingAPIKeyLeavesNoEvent(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, nil)
	trigger := p.seed(t, func(tr *models.Trigger) {
		tr.AuthConfig = &models.AuthConfig{Type: models.AuthTypeAPIKey, ExpectedKey: "secret"}
	})

	outcome := p.service.HandleWebhook(context.Background(), webhook(`{"x":1}`), trigger)

	assert.Equal(t, intake.StatusUnauthorized, outcome.Status)
	assert.ErrorIs(t, outcome.Err, auth.ErrAPIKeyMismatch)
	assert.Nil(t, outcome.Event)
	assert.Empty(t, p.eventsOf(t, trigger.ID))
	assert.Zero(t, p.calls)
}

func TestHandleWebhook_ValidAPIKey(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, nil)
	trigger := p.seed(t, func(tr *models.Trigger) {
		tr.AuthConfig = &models.AuthConfig{Type: models.AuthTypeAPIKey, ExpectedKey: "secret"}
	})

	outcome := p.service.HandleWebhook(context.Background(), webhook(`{}`, "X-API-Key", "secret"), trigger)

	assert.Equal(t, intake.StatusDispatched, outcome.Status)
	require.NotNil(t, outcome.Event)
	assert.Equal(t, "***", outcome.Event.Metadata["headers"].(map[string]any)["x-api-key"])
}

func TestHandleWebhook_UnmetConditionsAreIgnored(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newPipeline(t, nil)
	trigger := p.seed(t, func(tr *models.Trigger) {
		tr.Conditions = map[string]models.Condition{
			"event_type": {Operator: models.OperatorEquals, Value: "order.created"},
		}
	})

	outcome := p.service.HandleWebhook(ctx, webhook(`{"event_type":"member.updated"}`), trigger)

	assert.Equal(t, intake.StatusIgnored, outcome.Status)
	assert.Equal(t, intake.ConditionsNotMet, outcome.Message)
	assert.Nil(t, outcome.Run)

	event, err := p.events.Get(ctx, outcome.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusIgnored, event.Status)

	stale, err := p.store.RunRepository().ListStaleRuns(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
	assert.Zero(t, p.calls)
}

func TestHandleWebhook_DuplicateDeliveriesAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newPipeline(t, nil)
	trigger := p.seed(t, nil)
	body := `{"order_id":"o-1"}`

	first := p.service.HandleWebhook(ctx, webhook(body), trigger)
	second := p.service.HandleWebhook(ctx, webhook(body), trigger)

	require.Equal(t, intake.StatusDispatched, first.Status)
	require.Equal(t, intake.StatusDispatched, second.Status)
	assert.NotEqual(t, first.Event.ID, second.Event.ID)
	assert.NotEqual(t, first.Run.RunID, second.Run.RunID)
	assert.Len(t, p.eventsOf(t, trigger.ID), 2)
	assert.Equal(t, 2, p.calls)
}

func TestHandleWebhook_InvalidBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		schema  map[string]any
		wantErr error
	}{
		{
			name:    "malformed json",
			body:    `{"x":`,
			wantErr: intake.ErrInvalidPayload,
		},
		{
			name: "schema mismatch",
			body: `{"email":42}`,
			schema: map[string]any{
				"type":     "object",
				"required": []any{"email"},
				"properties": map[string]any{
					"email": map[string]any{"type": "string"},
				},
			},
			wantErr: intake.ErrSchemaMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			p := newPipeline(t, nil)
			trigger := p.seed(t, func(tr *models.Trigger) { tr.JSONSchema = tt.schema })

			outcome := p.service.HandleWebhook(ctx, webhook(tt.body), trigger)

			assert.Equal(t, intake.StatusInvalid, outcome.Status)
			require.ErrorIs(t, outcome.Err, tt.wantErr)

			event, err := p.events.Get(ctx, outcome.Event.ID)
			require.NoError(t, err)
			assert.Equal(t, models.EventStatusFailed, event.Status)
			assert.Zero(t, p.calls)
		})
	}
}

func TestHandleWebhook_SchemaMatch(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, nil)
	trigger := p.seed(t, func(tr *models.Trigger) {
		tr.JSONSchema = map[string]any{"type": "object", "required": []any{"email"}}
	})

	outcome := p.service.HandleWebhook(context.Background(), webhook(`{"email":"ada@example.com"}`), trigger)

	assert.Equal(t, intake.StatusDispatched, outcome.Status)
}

func TestHandleWebhook_DispatchFailureFailsEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newPipeline(t, nil)
	trigger := p.seed(t, nil)

	sequence, err := p.store.SequenceRepository().GetByID(ctx, "seq-1")
	require.NoError(t, err)
	sequence.Active = false
	require.NoError(t, p.store.SequenceRepository().Save(ctx, sequence))

	outcome := p.service.HandleWebhook(ctx, webhook(`{}`), trigger)

	assert.Equal(t, intake.StatusFailed, outcome.Status)
	assert.True(t, workflow.IsDispatchError(outcome.Err))
	assert.ErrorIs(t, outcome.Err, workflow.ErrSequenceInactive)

	event, err := p.events.Get(ctx, outcome.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusFailed, event.Status)
	assert.Contains(t, event.ErrorMessage, "not active")
}

func TestHandleWebhook_PanicIsRecovered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dispatcher := &mocks.MockDispatcher{}
	dispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("dispatcher exploded") })

	p := newPipeline(t, dispatcher)
	trigger := p.seed(t, nil)

	var outcome intake.Outcome

	require.NotPanics(t, func() {
		outcome = p.service.HandleWebhook(ctx, webhook(`{}`), trigger)
	})

	assert.Equal(t, intake.StatusFailed, outcome.Status)
	assert.ErrorIs(t, outcome.Err, intake.ErrPanic)
	assert.NotContains(t, outcome.Message, "exploded")

	event, err := p.events.Get(ctx, outcome.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusFailed, event.Status)
}

func TestHandleWebhook_DispatchReceivesParsedPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dispatcher := &mocks.MockDispatcher{}
	p := newPipeline(t, dispatcher)
	trigger := p.seed(t, nil)

	dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(tr *models.Trigger) bool { return tr.ID == trigger.ID }),
		mock.AnythingOfType("*models.TriggerEvent"), map[string]any{"email": "ada@example.com"}).
		Return(&workflow.RunHandle{RunID: "run-42", SequenceID: "seq-1"}, nil).Once()

	outcome := p.service.HandleWebhook(ctx, webhook(`{"email":"ada@example.com"}`), trigger)
	require.Equal(t, intake.StatusDispatched, outcome.Status, outcome.Message)
	dispatcher.AssertExpectations(t)

	event, err := p.events.Get(ctx, outcome.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, "run-42", event.RunID)
	assert.Equal(t, models.EventStatusReceived, event.Status)
}

func TestHandleIntegrationEvents_FansOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newPipeline(t, nil)
	p.seed(t, func(tr *models.Trigger) {
		tr.ID = "trg-int-1"
		tr.Kind = models.TriggerKindIntegration
		tr.WebhookToken = ""
		tr.IntegrationID = "int-1"
		tr.TriggerKey = "member.created"
	})
	p.seed(t, func(tr *models.Trigger) {
		tr.ID = "trg-int-2"
		tr.Kind = models.TriggerKindIntegration
		tr.WebhookToken = ""
		tr.IntegrationID = "int-1"
		tr.TriggerKey = "member.created"
		tr.Conditions = map[string]models.Condition{"plan": {Operator: models.OperatorEquals, Value: "pro"}}
	})

	outcomes, err := p.service.HandleIntegrationEvents(ctx, "int-1", "member.created", map[string]any{"plan": "free"})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	statuses := map[string]intake.Status{}
	for _, o := range outcomes {
		statuses[o.Event.TriggerID] = o.Status
		assert.Equal(t, models.EventSourceIntegration, o.Event.Source)
	}

	assert.Equal(t, intake.StatusDispatched, statuses["trg-int-1"])
	assert.Equal(t, intake.StatusIgnored, statuses["trg-int-2"])
}

func TestResolveWebhookTrigger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newPipeline(t, nil)
	trigger := p.seed(t, nil)

	found, err := p.service.ResolveWebhookTrigger(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, trigger.ID, found.ID)

	_, err = p.service.ResolveWebhookTrigger(ctx, "tok-unknown")
	assert.True(t, persistence.IsNotFound(err))

	trigger.Active = false
	require.NoError(t, p.store.TriggerRepository().Save(ctx, trigger))

	cached, err := p.service.ResolveWebhookTrigger(ctx, "tok-1")
	require.NoError(t, err, "lookups are served from cache")
	assert.True(t, cached.Active)

	p.service.ForgetTrigger(trigger)

	_, err = p.service.ResolveWebhookTrigger(ctx, "tok-1")
	assert.True(t, errors.Is(err, persistence.ErrTriggerNotFound))
}
