package file

import (
	"context"
	"slices"
	"time"

	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/persistence"
)

// TriggerEventRepository handles trigger event files.
type TriggerEventRepository struct {
	p       *Persistence
	records store[models.TriggerEvent]
}

func (r *TriggerEventRepository) Create(_ context.Context, event *models.TriggerEvent) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	return r.records.write(event.ID, event)
}

func (r *TriggerEventRepository) GetByID(_ context.Context, id string) (*models.TriggerEvent, error) {
	event, err := r.records.read(id)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "trigger event", id, err)
	}

	if event == nil {
		return nil, persistence.NewRecordError("GetByID", "trigger event", id, persistence.ErrTriggerEventNotFound)
	}

	return event, nil
}

// ListByTrigger returns the newest events first.
func (r *TriggerEventRepository) ListByTrigger(_ context.Context, triggerID string, limit int) ([]*models.TriggerEvent, error) {
	events, err := r.records.list(func(e *models.TriggerEvent) bool {
		return e.TriggerID == triggerID
	})
	if err != nil {
		return nil, persistence.NewRecordError("ListByTrigger", "trigger", triggerID, err)
	}

	slices.SortFunc(events, func(a, b *models.TriggerEvent) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}

func (r *TriggerEventRepository) Transition(_ context.Context, id string, to models.EventStatus, errorMessage string, at time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	event, err := r.records.read(id)
	if err != nil {
		return persistence.NewRecordError("Transition", "trigger event", id, err)
	}

	if event == nil {
		return persistence.NewRecordError("Transition", "trigger event", id, persistence.ErrTriggerEventNotFound)
	}

	if !event.Status.CanTransition(to) {
		return persistence.NewRecordError("Transition", "trigger event", id, persistence.ErrEventTerminal)
	}

	event.Status = to
	event.ErrorMessage = errorMessage
	event.ProcessedAt = &at

	return r.records.write(id, event)
}

func (r *TriggerEventRepository) AttachRun(_ context.Context, id, runID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	event, err := r.records.read(id)
	if err != nil {
		return persistence.NewRecordError("AttachRun", "trigger event", id, err)
	}

	if event == nil {
		return persistence.NewRecordError("AttachRun", "trigger event", id, persistence.ErrTriggerEventNotFound)
	}

	event.RunID = runID

	return r.records.write(id, event)
}
