package mocks

import (
	"context"
	"time"

	"github.com/dukex/sequences/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockRunRepository is a mock implementation of persistence.RunRepository interface.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) CreateRun(ctx context.Context, run *models.WorkflowRun, steps []*models.WorkflowStep) error {
	args := m.Called(ctx, run, steps)

	return args.Error(0)
}

func (m *MockRunRepository) GetRun(ctx context.Context, id string) (*models.WorkflowRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRun), args.Error(1)
}

func (m *MockRunRepository) UpdateRun(ctx context.Context, run *models.WorkflowRun) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockRunRepository) TouchRun(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockRunRepository) ListSteps(ctx context.Context, runID string) ([]*models.WorkflowStep, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowStep), args.Error(1)
}

func (m *MockRunRepository) UpdateStep(ctx context.Context, step *models.WorkflowStep) error {
	args := m.Called(ctx, step)

	return args.Error(0)
}

func (m *MockRunRepository) ListStaleRuns(ctx context.Context, before time.Time, limit int) ([]*models.WorkflowRun, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowRun), args.Error(1)
}
