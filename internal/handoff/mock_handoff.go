package handoff

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockChannel is a mock implementation of Channel using testify/mock.
type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) Put(ctx context.Context, surface Surface, text string) (Selection, error) {
	args := m.Called(ctx, surface, text)
	return args.Get(0).(Selection), args.Error(1)
}

func (m *MockChannel) Take(ctx context.Context, surface Surface) (Selection, error) {
	args := m.Called(ctx, surface)
	return args.Get(0).(Selection), args.Error(1)
}

func (m *MockChannel) Watch(ctx context.Context, surface Surface) (<-chan Selection, error) {
	args := m.Called(ctx, surface)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan Selection), args.Error(1)
}

func (m *MockChannel) Close() error {
	args := m.Called()
	return args.Error(0)
}
