package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/persistence"
)

// TriggerRepository handles trigger database operations.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const triggerColumns = `
	id, sequence_id, name, kind, integration_id, trigger_key, webhook_token, webhook_secret,
	auth_config, conditions, json_schema, active, last_triggered_at, trigger_count, created_at, updated_at
`

func (r *TriggerRepository) Save(ctx context.Context, trigger *models.Trigger) error {
	now := time.Now().UTC()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	authConfig, err := marshalJSON("auth_config", trigger.AuthConfig)
	if err != nil {
		return err
	}

	conditions, err := marshalJSON("conditions", trigger.Conditions)
	if err != nil {
		return err
	}

	schema, err := marshalJSON("json_schema", trigger.JSONSchema)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO triggers (` + triggerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			integration_id = EXCLUDED.integration_id,
			trigger_key = EXCLUDED.trigger_key,
			webhook_token = EXCLUDED.webhook_token,
			webhook_secret = EXCLUDED.webhook_secret,
			auth_config = EXCLUDED.auth_config,
			conditions = EXCLUDED.conditions,
			json_schema = EXCLUDED.json_schema,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		trigger.ID,
		trigger.SequenceID,
		trigger.Name,
		trigger.Kind,
		trigger.IntegrationID,
		trigger.TriggerKey,
		trigger.WebhookToken,
		trigger.WebhookSecret,
		authConfig,
		conditions,
		schema,
		trigger.Active,
		trigger.LastTriggeredAt,
		trigger.TriggerCount,
		trigger.CreatedAt,
		trigger.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRecordError("Save", "trigger", trigger.ID, err)
	}

	return nil
}

func (r *TriggerRepository) GetByID(ctx context.Context, id string) (*models.Trigger, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+triggerColumns+` FROM triggers WHERE id = $1`, id)

	trigger, err := scanTrigger(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetByID", "trigger", id, persistence.ErrTriggerNotFound)
		}

		return nil, persistence.NewRecordError("GetByID", "trigger", id, err)
	}

	return trigger, nil
}

func (r *TriggerRepository) GetByWebhookToken(ctx context.Context, token string) (*models.Trigger, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+triggerColumns+` FROM triggers WHERE webhook_token = $1 AND kind = 'webhook'`, token)

	trigger, err := scanTrigger(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetByWebhookToken", "trigger", token, persistence.ErrTriggerNotFound)
		}

		return nil, persistence.NewRecordError("GetByWebhookToken", "trigger", token, err)
	}

	return trigger, nil
}

func (r *TriggerRepository) ListByIntegration(ctx context.Context, integrationID, triggerKey string) ([]*models.Trigger, error) {
	query := `SELECT ` + triggerColumns + `
		FROM triggers
		WHERE kind = 'integration' AND active AND integration_id = $1 AND trigger_key = $2
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, integrationID, triggerKey)
	if err != nil {
		return nil, persistence.NewRecordError("ListByIntegration", "integration", integrationID, err)
	}
	defer closeRows(ctx, r.logger, rows)

	var triggers []*models.Trigger

	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, persistence.NewRecordError("ListByIntegration", "integration", integrationID, err)
		}

		triggers = append(triggers, trigger)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRecordError("ListByIntegration", "integration", integrationID, err)
	}

	return triggers, nil
}

func (r *TriggerRepository) RecordActivation(ctx context.Context, triggerID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE triggers SET trigger_count = trigger_count + 1, last_triggered_at = $2, updated_at = $2 WHERE id = $1`,
		triggerID, at,
	)
	if err != nil {
		return persistence.NewRecordError("RecordActivation", "trigger", triggerID, err)
	}

	return requireAffected(result, "RecordActivation", "trigger", triggerID, persistence.ErrTriggerNotFound)
}

func scanTrigger(row scanner) (*models.Trigger, error) {
	var (
		trigger         models.Trigger
		webhookToken    sql.NullString
		authConfig      []byte
		conditions      []byte
		schema          []byte
		lastTriggeredAt sql.NullTime
	)

	err := row.Scan(
		&trigger.ID,
		&trigger.SequenceID,
		&trigger.Name,
		&trigger.Kind,
		&trigger.IntegrationID,
		&trigger.TriggerKey,
		&webhookToken,
		&trigger.WebhookSecret,
		&authConfig,
		&conditions,
		&schema,
		&trigger.Active,
		&lastTriggeredAt,
		&trigger.TriggerCount,
		&trigger.CreatedAt,
		&trigger.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan trigger: %w", err)
	}

	trigger.WebhookToken = webhookToken.String
	trigger.LastTriggeredAt = nullTime(lastTriggeredAt)

	if err := unmarshalJSON("auth_config", authConfig, &trigger.AuthConfig); err != nil {
		return nil, err
	}

	if err := unmarshalJSON("conditions", conditions, &trigger.Conditions); err != nil {
		return nil, err
	}

	if err := unmarshalJSON("json_schema", schema, &trigger.JSONSchema); err != nil {
		return nil, err
	}

	return &trigger, nil
}
