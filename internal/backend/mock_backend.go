package backend

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBackend is a mock implementation of Backend using testify/mock.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Availability(ctx context.Context) (Availability, error) {
	args := m.Called(ctx)
	return args.Get(0).(Availability), args.Error(1)
}

func (m *MockBackend) Create(ctx context.Context, opts Options) (Session, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Session), args.Error(1)
}

// MockSession is a mock implementation of Session using testify/mock.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Prompt(ctx context.Context, input string) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

func (m *MockSession) PromptStreaming(ctx context.Context, input string) (SnapshotStream, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(SnapshotStream), args.Error(1)
}

func (m *MockSession) MeasureInputUsage(ctx context.Context, input string) (int, error) {
	args := m.Called(ctx, input)
	return args.Int(0), args.Error(1)
}

func (m *MockSession) Destroy() {
	m.Called()
}

// MockImageSession is a MockSession that also accepts images.
type MockImageSession struct {
	MockSession
}

func (m *MockImageSession) PromptStreamingImages(ctx context.Context, input string, images []Image) (SnapshotStream, error) {
	args := m.Called(ctx, input, images)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(SnapshotStream), args.Error(1)
}
