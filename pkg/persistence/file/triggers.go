package file

import (
	"context"
	"time"

	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/persistence"
)

// triggerRecord keeps the webhook secret, which the model hides from JSON.
type triggerRecord struct {
	models.Trigger

	WebhookSecret string `json:"webhook_secret,omitempty"`
}

func (r *triggerRecord) model() *models.Trigger {
	trigger := r.Trigger
	trigger.WebhookSecret = r.WebhookSecret

	return &trigger
}

// TriggerRepository handles trigger files.
type TriggerRepository struct {
	p       *Persistence
	records store[triggerRecord]
}

func (r *TriggerRepository) Save(_ context.Context, trigger *models.Trigger) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	return r.records.write(trigger.ID, &triggerRecord{Trigger: *trigger, WebhookSecret: trigger.WebhookSecret})
}

func (r *TriggerRepository) GetByID(_ context.Context, id string) (*models.Trigger, error) {
	record, err := r.records.read(id)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "trigger", id, err)
	}

	if record == nil {
		return nil, persistence.NewRecordError("GetByID", "trigger", id, persistence.ErrTriggerNotFound)
	}

	return record.model(), nil
}

func (r *TriggerRepository) GetByWebhookToken(_ context.Context, token string) (*models.Trigger, error) {
	if token != "" {
		records, err := r.records.list(func(t *triggerRecord) bool {
			return t.Kind == models.TriggerKindWebhook && t.WebhookToken == token
		})
		if err != nil {
			return nil, persistence.NewRecordError("GetByWebhookToken", "trigger", token, err)
		}

		if len(records) > 0 {
			return records[0].model(), nil
		}
	}

	return nil, persistence.NewRecordError("GetByWebhookToken", "trigger", token, persistence.ErrTriggerNotFound)
}

func (r *TriggerRepository) ListByIntegration(_ context.Context, integrationID, triggerKey string) ([]*models.Trigger, error) {
	records, err := r.records.list(func(t *triggerRecord) bool {
		return t.Active &&
			t.Kind == models.TriggerKindIntegration &&
			t.IntegrationID == integrationID &&
			t.TriggerKey == triggerKey
	})
	if err != nil {
		return nil, persistence.NewRecordError("ListByIntegration", "integration", integrationID, err)
	}

	triggers := make([]*models.Trigger, 0, len(records))
	for _, record := range records {
		triggers = append(triggers, record.model())
	}

	return triggers, nil
}

func (r *TriggerRepository) RecordActivation(_ context.Context, triggerID string, at time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	record, err := r.records.read(triggerID)
	if err != nil {
		return persistence.NewRecordError("RecordActivation", "trigger", triggerID, err)
	}

	if record == nil {
		return persistence.NewRecordError("RecordActivation", "trigger", triggerID, persistence.ErrTriggerNotFound)
	}

	record.TriggerCount++
	record.LastTriggeredAt = &at
	record.UpdatedAt = at

	return r.records.write(triggerID, record)
}
