package queue

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockQueue stands in for NATS in gateway and worker tests. Enqueue sees
// study tasks with a StudyPayload body; Worker returns whatever the test set.
type MockQueue struct {
	mock.Mock
}

// Enqueue records task; match on task.Type and the decoded payload.
func (m *MockQueue) Enqueue(ctx context.Context, task Task) error {
	return m.Called(ctx, task).Error(0)
}

// Worker does not run handler. Tests call the handler directly.
func (m *MockQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	return m.Called(ctx, taskType, handler).Error(0)
}
