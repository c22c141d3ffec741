package mocks

import (
	"context"

	"github.com/dukex/sequences/pkg/models"
	"github.com/dukex/sequences/pkg/workflow"
	"github.com/stretchr/testify/mock"
)

// MockDispatcher is a mock implementation of intake.Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, trigger *models.Trigger, event *models.TriggerEvent, payload any) (*workflow.RunHandle, error) {
	args := m.Called(ctx, trigger, event, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*workflow.RunHandle), args.Error(1)
}
