// Package triggerevents records trigger activations and drives their lifecycle.
//
//	received --(conditions unmet)--> ignored
//	received --(run succeeded)-----> processed
//	received --(dispatch or run failed)--> failed
//
// Terminal states are never left.
package triggerevents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/persistence"
	"github.com/google/uuid"
)

// Observer is told about every stored status change.
type Observer interface {
	EventTransitioned(status models.EventStatus)
}

type Store struct {
	repo     persistence.TriggerEventRepository
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

type Option func(*Store)

// WithObserver reports transitions, including the initial received, to o.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(repo persistence.TriggerEventRepository, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		logger: logger.With("module", "trigger_events"),
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Record stores a new received event for the trigger.
func (s *Store) Record(ctx context.Context, trigger *models.Trigger, source models.EventSource, payload any, metadata map[string]any) (*models.TriggerEvent, error) {
	event := &models.TriggerEvent{
		ID:        uuid.NewString(),
		TriggerID: trigger.ID,
		Source:    source,
		EventData: payload,
		Metadata:  metadata,
		Status:    models.EventStatusReceived,
		CreatedAt: s.now(),
	}

	err := s.repo.Create(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to record trigger event: %w", err)
	}

	s.notify(models.EventStatusReceived)
	s.logger.DebugContext(ctx, "trigger event recorded", "event_id", event.ID, "trigger_id", trigger.ID, "source", source)

	return event, nil
}

// AttachRun links the event to the run it started. The event stays received
// until the run finishes.
func (s *Store) AttachRun(ctx context.Context, event *models.TriggerEvent, runID string) error {
	err := s.repo.AttachRun(ctx, event.ID, runID)
	if err != nil {
		return fmt.Errorf("failed to attach run to trigger event: %w", err)
	}

	event.RunID = runID

	return nil
}

// MarkProcessed finishes the event after its run succeeded.
func (s *Store) MarkProcessed(ctx context.Context, event *models.TriggerEvent, runID string) error {
	if runID != "" && event.RunID != runID {
		if err := s.AttachRun(ctx, event, runID); err != nil {
			return err
		}
	}

	return s.transition(ctx, event, models.EventStatusProcessed, "")
}

// MarkIgnored finishes an event whose conditions did not match.
func (s *Store) MarkIgnored(ctx context.Context, event *models.TriggerEvent, reason string) error {
	return s.transition(ctx, event, models.EventStatusIgnored, reason)
}

// MarkFailed finishes an event that could not be dispatched or whose run failed.
func (s *Store) MarkFailed(ctx context.Context, event *models.TriggerEvent, reason string) error {
	return s.transition(ctx, event, models.EventStatusFailed, reason)
}

// Get loads an event by id.
func (s *Store) Get(ctx context.Context, id string) (*models.TriggerEvent, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load trigger event: %w", err)
	}

	return event, nil
}

func (s *Store) transition(ctx context.Context, event *models.TriggerEvent, to models.EventStatus, message string) error {
	at := s.now()

	err := s.repo.Transition(ctx, event.ID, to, message, at)
	if err != nil {
		if persistence.IsEventTerminal(err) {
			s.logger.WarnContext(ctx, "trigger event already finished", "event_id", event.ID, "to", to)
		}

		return fmt.Errorf("failed to mark trigger event %s: %w", to, err)
	}

	event.Status = to
	event.ErrorMessage = message
	event.ProcessedAt = &at

	s.notify(to)
	s.logger.InfoContext(ctx, "trigger event finished", "event_id", event.ID, "status", to)

	return nil
}

func (s *Store) notify(status models.EventStatus) {
	if s.observer != nil {
		s.observer.EventTransitioned(status)
	}
}
