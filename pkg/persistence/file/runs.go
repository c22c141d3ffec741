package file

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/persistence"
)

// RunRepository handles workflow run and step files.
type RunRepository struct {
	p     *Persistence
	runs  store[models.WorkflowRun]
	steps store[models.WorkflowStep]
}

// CreateRun writes the steps before the run; a partial write is removed again.
func (r *RunRepository) CreateRun(_ context.Context, run *models.WorkflowRun, steps []*models.WorkflowStep) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	var written []string

	for _, step := range steps {
		step.RunID = run.ID

		err := r.steps.write(step.ID, step)
		if err != nil {
			return errors.Join(persistence.NewRecordError("CreateRun", "run", run.ID, err), r.rollback(written))
		}

		written = append(written, step.ID)
	}

	err := r.runs.write(run.ID, run)
	if err != nil {
		return errors.Join(persistence.NewRecordError("CreateRun", "run", run.ID, err), r.rollback(written))
	}

	return nil
}

func (r *RunRepository) rollback(stepIDs []string) error {
	var errs []error
	for _, id := range stepIDs {
		errs = append(errs, r.steps.remove(id))
	}

	return errors.Join(errs...)
}

func (r *RunRepository) GetRun(_ context.Context, id string) (*models.WorkflowRun, error) {
	run, err := r.runs.read(id)
	if err != nil {
		return nil, persistence.NewRecordError("GetRun", "run", id, err)
	}

	if run == nil {
		return nil, persistence.NewRecordError("GetRun", "run", id, persistence.ErrRunNotFound)
	}

	return run, nil
}

func (r *RunRepository) UpdateRun(_ context.Context, run *models.WorkflowRun) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	existing, err := r.runs.read(run.ID)
	if err != nil {
		return persistence.NewRecordError("UpdateRun", "run", run.ID, err)
	}

	if existing == nil {
		return persistence.NewRecordError("UpdateRun", "run", run.ID, persistence.ErrRunNotFound)
	}

	run.UpdatedAt = time.Now().UTC()

	return r.runs.write(run.ID, run)
}

func (r *RunRepository) TouchRun(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	run, err := r.runs.read(id)
	if err != nil {
		return persistence.NewRecordError("TouchRun", "run", id, err)
	}

	if run == nil {
		return persistence.NewRecordError("TouchRun", "run", id, persistence.ErrRunNotFound)
	}

	if run.Status.IsTerminal() {
		return nil
	}

	run.UpdatedAt = time.Now().UTC()

	return r.runs.write(id, run)
}

func (r *RunRepository) ListSteps(_ context.Context, runID string) ([]*models.WorkflowStep, error) {
	steps, err := r.steps.list(func(s *models.WorkflowStep) bool {
		return s.RunID == runID
	})
	if err != nil {
		return nil, persistence.NewRecordError("ListSteps", "run", runID, err)
	}

	slices.SortFunc(steps, func(a, b *models.WorkflowStep) int {
		return a.Position - b.Position
	})

	return steps, nil
}

func (r *RunRepository) UpdateStep(_ context.Context, step *models.WorkflowStep) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored, err := r.steps.read(step.ID)
	if err != nil {
		return persistence.NewRecordError("UpdateStep", "step", step.ID, err)
	}

	if stored == nil {
		return persistence.NewRecordError("UpdateStep", "step", step.ID, persistence.ErrStepNotFound)
	}

	if stored.Version != step.Version {
		return persistence.NewRecordError("UpdateStep", "step", step.ID, persistence.ErrVersionConflict)
	}

	next := *step
	next.Version++

	err = r.steps.write(step.ID, &next)
	if err != nil {
		return persistence.NewRecordError("UpdateStep", "step", step.ID, err)
	}

	step.Version = next.Version

	return nil
}

func (r *RunRepository) ListStaleRuns(_ context.Context, before time.Time, limit int) ([]*models.WorkflowRun, error) {
	runs, err := r.runs.list(func(run *models.WorkflowRun) bool {
		return !run.Status.IsTerminal() && run.UpdatedAt.Before(before)
	})
	if err != nil {
		return nil, persistence.NewRecordError("ListStaleRuns", "run", "", err)
	}

	slices.SortFunc(runs, func(a, b *models.WorkflowRun) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}
