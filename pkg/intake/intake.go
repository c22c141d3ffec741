// Package intake turns trigger activations into audited trigger events and
// queued workflow runs.
//
// A webhook activation is authenticated first; a rejected request leaves no
// trace. Every accepted activation is recorded as a trigger event before its
// conditions are evaluated, so ignored and failed activations stay auditable.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/sequences/pkg/auth"
	"github.com/dukex/sequences/pkg/conditions"
	"github.com/dukex/sequences/pkg/metrics"
	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/otelhelper"
	"github.com/dukex/sequences/pkg/persistence"
	"github.com/dukex/sequences/pkg/triggerevents"
	"github.com/dukex/sequences/pkg/workflow"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidPayload = errors.New("request body is not valid JSON")
	ErrSchemaMismatch = errors.New("payload does not match trigger schema")
	ErrPanic          = errors.New("internal error while processing trigger")
)

// ConditionsNotMet is the message of ignored activations.
const ConditionsNotMet = "conditions not met"

// DefaultTriggerCacheTTL bounds how long a deactivated webhook trigger can
// still be served from the token cache.
const DefaultTriggerCacheTTL = 30 * time.Second

// Status is how an activation ended.
type Status string

const (
	StatusDispatched   Status = "dispatched"
	StatusIgnored      Status = "ignored"
	StatusUnauthorized Status = "unauthorized"
	StatusInvalid      Status = "invalid"
	StatusFailed       Status = "failed"
)

// Outcome reports the result of one activation. Event is nil when the
// activation was rejected before it was recorded.
type Outcome struct {
	Status  Status
	Event   *models.TriggerEvent
	Run     *workflow.RunHandle
	Message string
	Err     error
}

// Dispatcher starts runs for recorded activations.
type Dispatcher interface {
	Dispatch(ctx context.Context, trigger *models.Trigger, event *models.TriggerEvent, payload any) (*workflow.RunHandle, error)
}

type Service struct {
	triggers      persistence.TriggerRepository
	events        *triggerevents.Store
	authenticator *auth.Authenticator
	dispatcher    Dispatcher
	cache         *gocache.Cache
	logger        *slog.Logger
	tracer        trace.Tracer
	metrics       *metrics.Collector
}

type Option func(*Service)

// WithTriggerCacheTTL sets how long webhook token lookups are cached.
func WithTriggerCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cache = gocache.New(ttl, 2*ttl) }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	triggers persistence.TriggerRepository,
	events *triggerevents.Store,
	authenticator *auth.Authenticator,
	dispatcher Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		triggers:      triggers,
		events:        events,
		authenticator: authenticator,
		dispatcher:    dispatcher,
		cache:         gocache.New(DefaultTriggerCacheTTL, 2*DefaultTriggerCacheTTL),
		logger:        logger.With("module", "trigger_intake"),
		tracer:        otelhelper.NoopTracer(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ResolveWebhookTrigger finds the active webhook trigger behind a URL token.
// Unknown, inactive and non-webhook triggers all report ErrTriggerNotFound.
func (s *Service) ResolveWebhookTrigger(ctx context.Context, token string) (*models.Trigger, error) {
	if cached, ok := s.cache.Get(token); ok {
		return cached.(*models.Trigger), nil
	}

	trigger, err := s.triggers.GetByWebhookToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if !trigger.Active || !trigger.IsWebhook() {
		return nil, persistence.NewRecordError("ResolveWebhookTrigger", "trigger", trigger.ID, persistence.ErrTriggerNotFound)
	}

	s.cache.SetDefault(token, trigger)

	return trigger, nil
}

// ForgetTrigger drops a cached webhook lookup after the trigger changed.
func (s *Service) ForgetTrigger(trigger *models.Trigger) {
	if trigger.WebhookToken != "" {
		s.cache.Delete(trigger.WebhookToken)
	}
}

// HandleWebhook authenticates, records, filters and dispatches one webhook
// delivery.
func (s *Service) HandleWebhook(ctx context.Context, req WebhookRequest, trigger *models.Trigger) (outcome Outcome) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "intake.webhook",
		attribute.String(otelhelper.TriggerIDKey, trigger.ID),
		attribute.String(otelhelper.TriggerKindKey, string(trigger.Kind)),
	)
	defer span.End()

	defer s.observe(ctx, span, models.EventSourceWebhook, &outcome)
	defer s.recoverPanic(ctx, trigger, &outcome)

	err := s.authenticator.Verify(auth.Request{Header: req.Header, Body: req.Body}, trigger)
	if err != nil {
		s.logger.WarnContext(ctx, "webhook authentication failed", "trigger_id", trigger.ID, "reason", err)

		return Outcome{Status: StatusUnauthorized, Message: "Unauthorized", Err: err}
	}

	payload, parseErr := req.payload()
	if parseErr != nil {
		// Keep the raw body so the rejected delivery can be inspected.
		payload = string(req.content())
	}

	event, err := s.events.Record(ctx, trigger, models.EventSourceWebhook, payload, req.Metadata())
	if err != nil {
		return Outcome{Status: StatusFailed, Message: err.Error(), Err: err}
	}

	outcome.Event = event

	if parseErr != nil {
		return s.reject(ctx, event, fmt.Errorf("%w: %w", ErrInvalidPayload, parseErr))
	}

	return s.process(ctx, trigger, event, payload)
}

// HandleIntegrationEvent records and dispatches an activation delivered by an
// integration, which has authenticated it already.
func (s *Service) HandleIntegrationEvent(ctx context.Context, trigger *models.Trigger, payload any) (outcome Outcome) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "intake.integration",
		attribute.String(otelhelper.TriggerIDKey, trigger.ID),
		attribute.String(otelhelper.TriggerKindKey, string(trigger.Kind)),
	)
	defer span.End()

	defer s.observe(ctx, span, models.EventSourceIntegration, &outcome)
	defer s.recoverPanic(ctx, trigger, &outcome)

	event, err := s.events.Record(ctx, trigger, models.EventSourceIntegration, payload, nil)
	if err != nil {
		return Outcome{Status: StatusFailed, Message: err.Error(), Err: err}
	}

	outcome.Event = event

	return s.process(ctx, trigger, event, payload)
}

// HandleIntegrationEvents fans one integration event out to every active
// trigger listening for it.
func (s *Service) HandleIntegrationEvents(ctx context.Context, integrationID, triggerKey string, payload any) ([]Outcome, error) {
	triggers, err := s.triggers.ListByIntegration(ctx, integrationID, triggerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	outcomes := make([]Outcome, 0, len(triggers))
	for _, trigger := range triggers {
		outcomes = append(outcomes, s.HandleIntegrationEvent(ctx, trigger, payload))
	}

	return outcomes, nil
}

// process runs the shared tail of every activation on a recorded event.
func (s *Service) process(ctx context.Context, trigger *models.Trigger, event *models.TriggerEvent, payload any) Outcome {
	if len(trigger.JSONSchema) > 0 {
		err := validateJSONSchema(payload, trigger.JSONSchema)
		if err != nil {
			return s.reject(ctx, event, err)
		}
	}

	if unknown := conditions.Unknown(trigger.Conditions); len(unknown) > 0 {
		s.logger.WarnContext(ctx, "ignoring conditions with unknown operators", "trigger_id", trigger.ID, "fields", unknown)
	}

	if !conditions.Matches(payload, trigger.Conditions) {
		err := s.events.MarkIgnored(ctx, event, ConditionsNotMet)
		if err != nil {
			return Outcome{Status: StatusFailed, Event: event, Message: err.Error(), Err: err}
		}

		return Outcome{Status: StatusIgnored, Event: event, Message: ConditionsNotMet}
	}

	handle, err := s.dispatcher.Dispatch(ctx, trigger, event, payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to dispatch trigger", "trigger_id", trigger.ID, "event_id", event.ID, "error", err)
		s.markFailed(ctx, event, err.Error())

		return Outcome{Status: StatusFailed, Event: event, Message: err.Error(), Err: err}
	}

	err = s.events.AttachRun(ctx, event, handle.RunID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to link run to trigger event", "event_id", event.ID, "run_id", handle.RunID, "error", err)
	}

	return Outcome{Status: StatusDispatched, Event: event, Run: handle, Message: "Trigger processed successfully"}
}

func (s *Service) reject(ctx context.Context, event *models.TriggerEvent, cause error) Outcome {
	s.markFailed(ctx, event, cause.Error())

	return Outcome{Status: StatusInvalid, Event: event, Message: cause.Error(), Err: cause}
}

func (s *Service) markFailed(ctx context.Context, event *models.TriggerEvent, reason string) {
	err := s.events.MarkFailed(ctx, event, reason)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark trigger event failed", "event_id", event.ID, "error", err)
	}
}

// recoverPanic turns a panic into a failed outcome, failing the event when one
// was recorded. Details stay in the log.
func (s *Service) recoverPanic(ctx context.Context, trigger *models.Trigger, outcome *Outcome) {
	r := recover()
	if r == nil {
		return
	}

	s.logger.ErrorContext(ctx, "panic while processing trigger", "trigger_id", trigger.ID, "panic", r)

	if outcome.Event != nil {
		s.markFailed(ctx, outcome.Event, ErrPanic.Error())
	}

	*outcome = Outcome{Status: StatusFailed, Event: outcome.Event, Message: ErrPanic.Error(), Err: ErrPanic}
}

func (s *Service) observe(ctx context.Context, span trace.Span, source models.EventSource, outcome *Outcome) {
	s.metrics.IntakeOutcome(source, string(outcome.Status))
	span.SetAttributes(attribute.String("sequences.intake.status", string(outcome.Status)))

	if outcome.Event != nil {
		span.SetAttributes(attribute.String(otelhelper.TriggerEventIDKey, outcome.Event.ID))
	}

	if outcome.Status == StatusFailed && outcome.Err != nil {
		otelhelper.SetError(span, outcome.Err)
	}

	s.logger.DebugContext(ctx, "trigger activation handled", "status", outcome.Status, "message", outcome.Message)
}
