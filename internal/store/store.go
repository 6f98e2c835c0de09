package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"zimflow/internal/quiz"
)

type StudyStatus string

const (
	StatusProcessing StudyStatus = "processing"
	StatusReady      StudyStatus = "ready"
	StatusFailed     StudyStatus = "failed"
)

var ErrStudyNotFound = errors.New("study not found")

// Study is a text submitted for background summarizing and quizzing.
type Study struct {
	ID        uuid.UUID
	Title     string
	Source    string
	Status    StudyStatus
	Error     string
	Summary   string
	Quiz      *quiz.Quiz
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines persistence contract; an external DB implementation can replace this.
type Store interface {
	CreateStudy(ctx context.Context, title, source string) (Study, error)
	GetStudy(ctx context.Context, id uuid.UUID) (Study, error)
	ListStudies(ctx context.Context, limit int) ([]Study, error)
	UpdateStudyStatus(ctx context.Context, id uuid.UUID, status StudyStatus, reason string) error
	SaveSummary(ctx context.Context, id uuid.UUID, summary string) error
	SaveQuiz(ctx context.Context, id uuid.UUID, q quiz.Quiz) error
}
