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

// TriggerEventRepository handles trigger event database operations.
type TriggerEventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const eventColumns = `id, trigger_id, event_source, event_data, metadata, status, error_message, run_id, processed_at, created_at`

func (r *TriggerEventRepository) Create(ctx context.Context, event *models.TriggerEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	data, err := marshalJSON("event_data", event.EventData)
	if err != nil {
		return err
	}

	metadata, err := marshalJSON("metadata", event.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO trigger_events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID,
		event.TriggerID,
		event.Source,
		data,
		metadata,
		event.Status,
		event.ErrorMessage,
		event.RunID,
		event.ProcessedAt,
		event.CreatedAt,
	)
	if err != nil {
		return persistence.NewRecordError("Create", "trigger event", event.ID, err)
	}

	return nil
}

func (r *TriggerEventRepository) GetByID(ctx context.Context, id string) (*models.TriggerEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM trigger_events WHERE id = $1`, id)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetByID", "trigger event", id, persistence.ErrTriggerEventNotFound)
		}

		return nil, persistence.NewRecordError("GetByID", "trigger event", id, err)
	}

	return event, nil
}

func (r *TriggerEventRepository) ListByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.TriggerEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM trigger_events WHERE trigger_id = $1 ORDER BY created_at DESC, id LIMIT $2`,
		triggerID, limit,
	)
	if err != nil {
		return nil, persistence.NewRecordError("ListByTrigger", "trigger", triggerID, err)
	}
	defer closeRows(ctx, r.logger, rows)

	var events []*models.TriggerEvent

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, persistence.NewRecordError("ListByTrigger", "trigger", triggerID, err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRecordError("ListByTrigger", "trigger", triggerID, err)
	}

	return events, nil
}

// Transition only matches rows still in received, so concurrent writers cannot
// move an event twice.
func (r *TriggerEventRepository) Transition(ctx context.Context, id string, to models.EventStatus, errorMessage string, at time.Time) error {
	if !to.IsTerminal() {
		return persistence.NewRecordError("Transition", "trigger event", id,
			fmt.Errorf("%w: cannot move to %s", persistence.ErrEventTerminal, to))
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE trigger_events
		SET status = $2, error_message = $3, processed_at = $4
		WHERE id = $1 AND status = 'received'`,
		id, to, errorMessage, at,
	)
	if err != nil {
		return persistence.NewRecordError("Transition", "trigger event", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRecordError("Transition", "trigger event", id, err)
	}

	if affected == 1 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM trigger_events WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return persistence.NewRecordError("Transition", "trigger event", id, err)
	}

	if !exists {
		return persistence.NewRecordError("Transition", "trigger event", id, persistence.ErrTriggerEventNotFound)
	}

	return persistence.NewRecordError("Transition", "trigger event", id, persistence.ErrEventTerminal)
}

func (r *TriggerEventRepository) AttachRun(ctx context.Context, id, runID string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE trigger_events SET run_id = $2 WHERE id = $1`, id, runID)
	if err != nil {
		return persistence.NewRecordError("AttachRun", "trigger event", id, err)
	}

	return requireAffected(result, "AttachRun", "trigger event", id, persistence.ErrTriggerEventNotFound)
}

func scanEvent(row scanner) (*models.TriggerEvent, error) {
	var (
		event       models.TriggerEvent
		data        []byte
		metadata    []byte
		processedAt sql.NullTime
	)

	err := row.Scan(
		&event.ID,
		&event.TriggerID,
		&event.Source,
		&data,
		&metadata,
		&event.Status,
		&event.ErrorMessage,
		&event.RunID,
		&processedAt,
		&event.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan trigger event: %w", err)
	}

	event.ProcessedAt = nullTime(processedAt)

	if err := unmarshalJSON("event_data", data, &event.EventData); err != nil {
		return nil, err
	}

	if err := unmarshalJSON("metadata", metadata, &event.Metadata); err != nil {
		return nil, err
	}

	return &event, nil
}
