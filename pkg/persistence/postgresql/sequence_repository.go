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

// SequenceRepository handles sequence and action database operations.
type SequenceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *SequenceRepository) Save(ctx context.Context, sequence *models.Sequence) error {
	now := time.Now().UTC()
	if sequence.CreatedAt.IsZero() {
		sequence.CreatedAt = now
	}

	sequence.UpdatedAt = now

	query := `
		INSERT INTO sequences (id, organization_id, name, description, active, last_run_at, run_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		sequence.ID,
		sequence.OrganizationID,
		sequence.Name,
		sequence.Description,
		sequence.Active,
		sequence.LastRunAt,
		sequence.RunCount,
		sequence.CreatedAt,
		sequence.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRecordError("Save", "sequence", sequence.ID, err)
	}

	return nil
}

func (r *SequenceRepository) GetByID(ctx context.Context, id string) (*models.Sequence, error) {
	query := `
		SELECT id, organization_id, name, description, active, last_run_at, run_count, created_at, updated_at
		FROM sequences
		WHERE id = $1
	`

	var (
		sequence  models.Sequence
		lastRunAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sequence.ID,
		&sequence.OrganizationID,
		&sequence.Name,
		&sequence.Description,
		&sequence.Active,
		&lastRunAt,
		&sequence.RunCount,
		&sequence.CreatedAt,
		&sequence.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetByID", "sequence", id, persistence.ErrSequenceNotFound)
		}

		return nil, persistence.NewRecordError("GetByID", "sequence", id, err)
	}

	sequence.LastRunAt = nullTime(lastRunAt)

	return &sequence, nil
}

func (r *SequenceRepository) Actions(ctx context.Context, sequenceID string) ([]*models.Action, error) {
	query := `
		SELECT id, sequence_id, name, type, integration_id, app, action_key, configuration,
			   sort_order, metadata, timeout_seconds, max_retries, created_at, updated_at
		FROM actions
		WHERE sequence_id = $1
		ORDER BY sort_order, created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, sequenceID)
	if err != nil {
		return nil, persistence.NewRecordError("Actions", "sequence", sequenceID, err)
	}
	defer closeRows(ctx, r.logger, rows)

	var actions []*models.Action

	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, persistence.NewRecordError("Actions", "sequence", sequenceID, err)
		}

		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRecordError("Actions", "sequence", sequenceID, err)
	}

	return actions, nil
}

func scanAction(row scanner) (*models.Action, error) {
	var (
		action        models.Action
		configuration []byte
		metadata      []byte
	)

	err := row.Scan(
		&action.ID,
		&action.SequenceID,
		&action.Name,
		&action.Type,
		&action.IntegrationID,
		&action.App,
		&action.ActionKey,
		&configuration,
		&action.SortOrder,
		&metadata,
		&action.TimeoutSeconds,
		&action.MaxRetries,
		&action.CreatedAt,
		&action.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan action: %w", err)
	}

	if err := unmarshalJSON("configuration", configuration, &action.Configuration); err != nil {
		return nil, err
	}

	if err := unmarshalJSON("metadata", metadata, &action.Metadata); err != nil {
		return nil, err
	}

	return &action, nil
}

func (r *SequenceRepository) SaveAction(ctx context.Context, action *models.Action) error {
	now := time.Now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}

	action.UpdatedAt = now

	configuration, err := marshalJSON("configuration", action.Configuration)
	if err != nil {
		return err
	}

	metadata, err := marshalJSON("metadata", action.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO actions (
			id, sequence_id, name, type, integration_id, app, action_key, configuration,
			sort_order, metadata, timeout_seconds, max_retries, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			integration_id = EXCLUDED.integration_id,
			app = EXCLUDED.app,
			action_key = EXCLUDED.action_key,
			configuration = EXCLUDED.configuration,
			sort_order = EXCLUDED.sort_order,
			metadata = EXCLUDED.metadata,
			timeout_seconds = EXCLUDED.timeout_seconds,
			max_retries = EXCLUDED.max_retries,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		action.ID,
		action.SequenceID,
		action.Name,
		action.Type,
		action.IntegrationID,
		action.App,
		action.ActionKey,
		configuration,
		action.SortOrder,
		metadata,
		action.TimeoutSeconds,
		action.MaxRetries,
		action.CreatedAt,
		action.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRecordError("SaveAction", "action", action.ID, err)
	}

	return nil
}

func (r *SequenceRepository) RecordRun(ctx context.Context, sequenceID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sequences SET run_count = run_count + 1, last_run_at = $2, updated_at = $2 WHERE id = $1`,
		sequenceID, at,
	)
	if err != nil {
		return persistence.NewRecordError("RecordRun", "sequence", sequenceID, err)
	}

	return requireAffected(result, "RecordRun", "sequence", sequenceID, persistence.ErrSequenceNotFound)
}

// requireAffected maps a zero-row update to notFound.
func requireAffected(result sql.Result, op, entity, id string, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRecordError(op, entity, id, err)
	}

	if affected == 0 {
		return persistence.NewRecordError(op, entity, id, notFound)
	}

	return nil
}
