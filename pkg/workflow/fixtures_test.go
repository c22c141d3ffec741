package workflow_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/sequences/pkg/eventbus"
	"github.com/dukex/sequences/pkg/events"
	"github.com/dukex/sequences/pkg/integrations"
	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/persistence/file"
	"github.com/dukex/sequences/pkg/triggerevents"
	"github.com/dukex/sequences/pkg/workflow"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingPublisher keeps published events and fails while err is set.
type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	events []events.WorkflowRunQueued
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.events = append(p.events, event.(events.WorkflowRunQueued))

	return nil
}

func (p *recordingPublisher) published() []events.WorkflowRunQueued {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]events.WorkflowRunQueued(nil), p.events...)
}

type harness struct {
	store      *file.Persistence
	publisher  *recordingPublisher
	registry   *integrations.Registry
	events     *triggerevents.Store
	dispatcher *workflow.Dispatcher
	actions    *workflow.ActionExecutor
	runs       *workflow.RunExecutor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := testLogger()
	store := file.NewPersistence(t.TempDir())
	publisher := &recordingPublisher{}
	registry := integrations.NewRegistry(logger)
	eventStore := triggerevents.NewStore(store.TriggerEventRepository(), logger)

	actions := workflow.NewActionExecutor(registry, store.RunRepository(), logger,
		workflow.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		workflow.WithStepTimeout(time.Second),
	)

	return &harness{
		store:      store,
		publisher:  publisher,
		registry:   registry,
		events:     eventStore,
		dispatcher: workflow.NewDispatcher(store, publisher, logger),
		actions:    actions,
		runs:       workflow.NewRunExecutor(store, eventStore, actions, logger),
	}
}

// seed stores an active sequence with one action per operation and a webhook
// trigger pointing at it.
func (h *harness) seed(t *testing.T, operations ...integrations.Key) *models.Trigger {
	t.Helper()

	ctx := context.Background()
	sequence := &models.Sequence{ID: "seq-1", OrganizationID: "org-1", Name: "Welcome", Active: true}
	require.NoError(t, h.store.SequenceRepository().Save(ctx, sequence))

	for i, op := range operations {
		require.NoError(t, h.store.SequenceRepository().SaveAction(ctx, &models.Action{
			ID:         "act-" + string(rune('a'+i)),
			SequenceID: sequence.ID,
			Name:       "step_" + op.ActionKey,
			Type:       models.ActionTypeAppAction,
			App:        op.App,
			ActionKey:  op.ActionKey,
			SortOrder:  i + 1,
			Configuration: map[string]any{
				"email": "{{ trigger.email }}",
			},
		}))
	}

	trigger := &models.Trigger{
		ID:           "trg-1",
		SequenceID:   sequence.ID,
		Name:         "Signup hook",
		Kind:         models.TriggerKindWebhook,
		WebhookToken: "tok-1",
		Active:       true,
	}
	require.NoError(t, h.store.TriggerRepository().Save(ctx, trigger))

	return trigger
}

func (h *harness) record(t *testing.T, trigger *models.Trigger, payload map[string]any) *models.TriggerEvent {
	t.Helper()

	event, err := h.events.Record(context.Background(), trigger, models.EventSourceWebhook, payload, nil)
	require.NoError(t, err)

	return event
}

var (
	errBoom   = errors.New("boom")
	farFuture = time.Now().Add(24 * time.Hour)
)

// countingHandler fails its first failures calls with err.
type countingHandler struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	last     integrations.Invocation
}

func (c *countingHandler) Execute(_ context.Context, inv integrations.Invocation) (integrations.Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	c.last = inv

	if c.calls <= c.failures {
		return nil, c.err
	}

	return integrations.Output{"id": "contact-42", "email": inv.Arguments["email"]}, nil
}
