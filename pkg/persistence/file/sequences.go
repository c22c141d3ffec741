package file

import (
	"context"
	"slices"
	"time"

	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/persistence"
)

// SequenceRepository handles sequence and action files.
type SequenceRepository struct {
	p       *Persistence
	records store[models.Sequence]
	actions store[models.Action]
}

func (r *SequenceRepository) Save(_ context.Context, sequence *models.Sequence) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()
	if sequence.CreatedAt.IsZero() {
		sequence.CreatedAt = now
	}

	sequence.UpdatedAt = now

	return r.records.write(sequence.ID, sequence)
}

func (r *SequenceRepository) GetByID(_ context.Context, id string) (*models.Sequence, error) {
	sequence, err := r.records.read(id)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "sequence", id, err)
	}

	if sequence == nil {
		return nil, persistence.NewRecordError("GetByID", "sequence", id, persistence.ErrSequenceNotFound)
	}

	return sequence, nil
}

func (r *SequenceRepository) Actions(_ context.Context, sequenceID string) ([]*models.Action, error) {
	actions, err := r.actions.list(func(a *models.Action) bool {
		return a.SequenceID == sequenceID
	})
	if err != nil {
		return nil, persistence.NewRecordError("Actions", "sequence", sequenceID, err)
	}

	// Directory order is by id; sort by creation first so SortOrder ties keep insertion order.
	sortByCreated(actions)
	models.SortActions(actions)

	return actions, nil
}

func (r *SequenceRepository) SaveAction(_ context.Context, action *models.Action) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}

	action.UpdatedAt = now

	return r.actions.write(action.ID, action)
}

func (r *SequenceRepository) RecordRun(_ context.Context, sequenceID string, at time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	sequence, err := r.records.read(sequenceID)
	if err != nil {
		return persistence.NewRecordError("RecordRun", "sequence", sequenceID, err)
	}

	if sequence == nil {
		return persistence.NewRecordError("RecordRun", "sequence", sequenceID, persistence.ErrSequenceNotFound)
	}

	sequence.RunCount++
	sequence.LastRunAt = &at
	sequence.UpdatedAt = at

	return r.records.write(sequence.ID, sequence)
}

func sortByCreated(actions []*models.Action) {
	slices.SortStableFunc(actions, func(a, b *models.Action) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
