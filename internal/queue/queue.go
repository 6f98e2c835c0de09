package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"zimflow/internal/retry"
)

// TaskType enumerates supported task categories.
type TaskType string

const (
	// TaskTypeStudy summarizes a stored study and generates its quiz.
	TaskTypeStudy TaskType = "study"
)

// Task represents a unit of work handed from the gateway to a worker.
type Task struct {
	ID          uuid.UUID
	Type        TaskType
	Payload     []byte
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time
}

type Handler func(context.Context, Task) error

// DeadLetter is called once a task has used up its attempts.
type DeadLetter func(ctx context.Context, task Task, err error)

// Queue exposes a minimal contract to enqueue and consume tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Worker(ctx context.Context, taskType TaskType, handler Handler) error
}

// EnqueueWithRetry attempts to enqueue with retries and exponential backoff.
func EnqueueWithRetry(ctx context.Context, q Queue, task Task, attempts int, base time.Duration) error {
	return retry.Do(ctx, attempts, base, func(ctx context.Context) error {
		return q.Enqueue(ctx, task)
	})
}

// StudyPayload is the body of a TaskTypeStudy task.
type StudyPayload struct {
	StudyID uuid.UUID `json:"study_id"`
}
