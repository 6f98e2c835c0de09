package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"zimflow/internal/retry"
)

const (
	defaultMaxAttempts = 5
	maxRetryDelay      = time.Minute
)

// Option configures the NATS queue.
type Option func(*natsQueue)

// WithDeadLetter registers fn for tasks that permanently failed.
func WithDeadLetter(fn DeadLetter) Option {
	return func(q *natsQueue) { q.deadLetter = fn }
}

// NewNATS constructs a thin NATS-based queue.
func NewNATS(log *slog.Logger, nc *nats.Conn, opts ...Option) Queue {
	q := &natsQueue{log: log, nc: nc}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

type natsQueue struct {
	log        *slog.Logger
	nc         *nats.Conn
	deadLetter DeadLetter
}

func subject(t TaskType) string { return "zimflow.tasks." + string(t) }

func (q *natsQueue) Enqueue(_ context.Context, task Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Type == "" {
		return errors.New("task type required")
	}
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.nc.Publish(subject(task.Type), body)
}

func (q *natsQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	group := "workers-" + string(taskType)
	sub, err := q.nc.QueueSubscribe(subject(taskType), group, func(msg *nats.Msg) {
		q.handleMessage(ctx, msg, handler)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

func (q *natsQueue) handleMessage(ctx context.Context, msg *nats.Msg, handler Handler) {
	var task Task
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		q.log.Error("failed to decode task", "err", err)
		return
	}

	if wait := time.Until(task.NotBefore); wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	if err := handler(ctx, task); err != nil {
		q.retryTask(ctx, task, err)
	}
}

func (q *natsQueue) retryTask(ctx context.Context, task Task, handlerErr error) {
	task.Attempts++
	if task.MaxAttempts == 0 {
		task.MaxAttempts = defaultMaxAttempts
	}

	if task.Attempts < task.MaxAttempts {
		task.NotBefore = time.Now().Add(retry.CappedBackoff(task.Attempts, time.Second, maxRetryDelay))
		if err := q.Enqueue(ctx, task); err != nil {
			q.log.Error("failed to re-enqueue task after failure", "id", task.ID, "type", task.Type, "original_err", handlerErr, "enqueue_err", err)
		}
		return
	}
	q.log.Error("task permanently failed", "id", task.ID, "type", task.Type, "original_err", handlerErr)
	if q.deadLetter != nil {
		q.deadLetter(ctx, task, handlerErr)
	}
}
