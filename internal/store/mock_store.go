package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveRun(ctx context.Context, run EvaluationRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockStore) GetRun(ctx context.Context, id uuid.UUID) (EvaluationRun, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(EvaluationRun), args.Error(1)
}

func (m *MockStore) ListRuns(ctx context.Context, limit int) ([]EvaluationRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]EvaluationRun), args.Error(1)
}
