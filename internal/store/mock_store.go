package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"zimflow/internal/quiz"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateStudy(ctx context.Context, title, source string) (Study, error) {
	args := m.Called(ctx, title, source)
	return args.Get(0).(Study), args.Error(1)
}

func (m *MockStore) GetStudy(ctx context.Context, id uuid.UUID) (Study, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Study), args.Error(1)
}

func (m *MockStore) ListStudies(ctx context.Context, limit int) ([]Study, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Study), args.Error(1)
}

func (m *MockStore) UpdateStudyStatus(ctx context.Context, id uuid.UUID, status StudyStatus, reason string) error {
	args := m.Called(ctx, id, status, reason)
	return args.Error(0)
}

func (m *MockStore) SaveSummary(ctx context.Context, id uuid.UUID, summary string) error {
	args := m.Called(ctx, id, summary)
	return args.Error(0)
}

func (m *MockStore) SaveQuiz(ctx context.Context, id uuid.UUID, q quiz.Quiz) error {
	args := m.Called(ctx, id, q)
	return args.Error(0)
}
