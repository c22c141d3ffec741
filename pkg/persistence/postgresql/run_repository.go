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

// RunRepository handles workflow run and step database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const (
	runColumns  = `id, sequence_id, trigger_id, trigger_event_id, status, input, output, error_message, created_at, updated_at, started_at, completed_at`
	stepColumns = `id, run_id, action_id, name, position, status, input_data, output_data, processed_output,
		retry_count, max_retries, started_at, completed_at, duration_ms, error_code, error_message, version`
)

func (r *RunRepository) CreateRun(ctx context.Context, run *models.WorkflowRun, steps []*models.WorkflowStep) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	input, err := marshalJSON("input", run.Input)
	if err != nil {
		return err
	}

	output, err := marshalJSON("output", run.Output)
	if err != nil {
		return err
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewRecordError("CreateRun", "run", run.ID, err)
	}

	_, err = transaction.ExecContext(ctx,
		`INSERT INTO workflow_runs (`+runColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID,
		run.SequenceID,
		run.TriggerID,
		run.TriggerEventID,
		run.Status,
		input,
		output,
		run.ErrorMessage,
		run.CreatedAt,
		run.UpdatedAt,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		_ = transaction.Rollback()

		return persistence.NewRecordError("CreateRun", "run", run.ID, err)
	}

	for _, step := range steps {
		step.RunID = run.ID

		args, err := stepArgs(step)
		if err != nil {
			_ = transaction.Rollback()

			return persistence.NewRecordError("CreateRun", "run", run.ID, err)
		}

		_, err = transaction.ExecContext(ctx,
			`INSERT INTO workflow_steps (`+stepColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			args...,
		)
		if err != nil {
			_ = transaction.Rollback()

			return persistence.NewRecordError("CreateRun", "step", step.ID, err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return persistence.NewRecordError("CreateRun", "run", run.ID, err)
	}

	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.WorkflowRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("GetRun", "run", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRecordError("GetRun", "run", id, err)
	}

	return run, nil
}

func (r *RunRepository) UpdateRun(ctx context.Context, run *models.WorkflowRun) error {
	run.UpdatedAt = time.Now().UTC()

	output, err := marshalJSON("output", run.Output)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_runs
		SET status = $2, output = $3, error_message = $4, updated_at = $5, started_at = $6, completed_at = $7
		WHERE id = $1`,
		run.ID,
		run.Status,
		output,
		run.ErrorMessage,
		run.UpdatedAt,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		return persistence.NewRecordError("UpdateRun", "run", run.ID, err)
	}

	return requireAffected(result, "UpdateRun", "run", run.ID, persistence.ErrRunNotFound)
}

func (r *RunRepository) TouchRun(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_runs
		SET updated_at = $2
		WHERE id = $1 AND status IN ('queued', 'running')`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return persistence.NewRecordError("TouchRun", "run", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRecordError("TouchRun", "run", id, err)
	}

	if affected > 0 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM workflow_runs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return persistence.NewRecordError("TouchRun", "run", id, err)
	}

	if !exists {
		return persistence.NewRecordError("TouchRun", "run", id, persistence.ErrRunNotFound)
	}

	return nil
}

func (r *RunRepository) ListSteps(ctx context.Context, runID string) ([]*models.WorkflowStep, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+stepColumns+` FROM workflow_steps WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, persistence.NewRecordError("ListSteps", "run", runID, err)
	}
	defer closeRows(ctx, r.logger, rows)

	var steps []*models.WorkflowStep

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, persistence.NewRecordError("ListSteps", "run", runID, err)
		}

		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRecordError("ListSteps", "run", runID, err)
	}

	return steps, nil
}

func (r *RunRepository) UpdateStep(ctx context.Context, step *models.WorkflowStep) error {
	inputData, err := marshalJSON("input_data", step.InputData)
	if err != nil {
		return err
	}

	outputData, err := marshalJSON("output_data", step.OutputData)
	if err != nil {
		return err
	}

	processed, err := marshalJSON("processed_output", step.ProcessedOutput)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_steps
		SET status = $3, input_data = $4, output_data = $5, processed_output = $6,
			retry_count = $7, max_retries = $8, started_at = $9, completed_at = $10,
			duration_ms = $11, error_code = $12, error_message = $13, version = version + 1
		WHERE id = $1 AND version = $2`,
		step.ID,
		step.Version,
		step.Status,
		inputData,
		outputData,
		processed,
		step.RetryCount,
		step.MaxRetries,
		step.StartedAt,
		step.CompletedAt,
		step.DurationMs,
		step.ErrorCode,
		step.ErrorMessage,
	)
	if err != nil {
		return persistence.NewRecordError("UpdateStep", "step", step.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRecordError("UpdateStep", "step", step.ID, err)
	}

	if affected == 0 {
		var exists bool

		err = r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM workflow_steps WHERE id = $1)`, step.ID).Scan(&exists)
		if err != nil {
			return persistence.NewRecordError("UpdateStep", "step", step.ID, err)
		}

		if !exists {
			return persistence.NewRecordError("UpdateStep", "step", step.ID, persistence.ErrStepNotFound)
		}

		return persistence.NewRecordError("UpdateStep", "step", step.ID, persistence.ErrVersionConflict)
	}

	step.Version++

	return nil
}

func (r *RunRepository) ListStaleRuns(ctx context.Context, before time.Time, limit int) ([]*models.WorkflowRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM workflow_runs
		WHERE status IN ('queued', 'running') AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, persistence.NewRecordError("ListStaleRuns", "run", "", err)
	}
	defer closeRows(ctx, r.logger, rows)

	var runs []*models.WorkflowRun

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, persistence.NewRecordError("ListStaleRuns", "run", "", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRecordError("ListStaleRuns", "run", "", err)
	}

	return runs, nil
}

func stepArgs(step *models.WorkflowStep) ([]any, error) {
	inputData, err := marshalJSON("input_data", step.InputData)
	if err != nil {
		return nil, err
	}

	outputData, err := marshalJSON("output_data", step.OutputData)
	if err != nil {
		return nil, err
	}

	processed, err := marshalJSON("processed_output", step.ProcessedOutput)
	if err != nil {
		return nil, err
	}

	return []any{
		step.ID,
		step.RunID,
		step.ActionID,
		step.Name,
		step.Position,
		step.Status,
		inputData,
		outputData,
		processed,
		step.RetryCount,
		step.MaxRetries,
		step.StartedAt,
		step.CompletedAt,
		step.DurationMs,
		step.ErrorCode,
		step.ErrorMessage,
		step.Version,
	}, nil
}

func scanRun(row scanner) (*models.WorkflowRun, error) {
	var (
		run         models.WorkflowRun
		input       []byte
		output      []byte
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.SequenceID,
		&run.TriggerID,
		&run.TriggerEventID,
		&run.Status,
		&input,
		&output,
		&run.ErrorMessage,
		&run.CreatedAt,
		&run.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan workflow run: %w", err)
	}

	run.StartedAt = nullTime(startedAt)
	run.CompletedAt = nullTime(completedAt)

	if err := unmarshalJSON("input", input, &run.Input); err != nil {
		return nil, err
	}

	if err := unmarshalJSON("output", output, &run.Output); err != nil {
		return nil, err
	}

	return &run, nil
}

func scanStep(row scanner) (*models.WorkflowStep, error) {
	var (
		step        models.WorkflowStep
		inputData   []byte
		outputData  []byte
		processed   []byte
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&step.ID,
		&step.RunID,
		&step.ActionID,
		&step.Name,
		&step.Position,
		&step.Status,
		&inputData,
		&outputData,
		&processed,
		&step.RetryCount,
		&step.MaxRetries,
		&startedAt,
		&completedAt,
		&step.DurationMs,
		&step.ErrorCode,
		&step.ErrorMessage,
		&step.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow step: %w", err)
	}

	step.StartedAt = nullTime(startedAt)
	step.CompletedAt = nullTime(completedAt)

	if err := unmarshalJSON("input_data", inputData, &step.InputData); err != nil {
		return nil, err
	}

	if err := unmarshalJSON("output_data", outputData, &step.OutputData); err != nil {
		return nil, err
	}

	if err := unmarshalJSON("processed_output", processed, &step.ProcessedOutput); err != nil {
		return nil, err
	}

	return &step, nil
}
