package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"zimflow/internal/quiz"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Advisory lock keeps the gateway and workers from migrating concurrently.
	const lockID = 731902114

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		// Another service is running migrations; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}

	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS studies (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS quizzes (
			study_id UUID PRIMARY KEY REFERENCES studies(id) ON DELETE CASCADE,
			question TEXT NOT NULL,
			options TEXT[] NOT NULL,
			correct_index INT NOT NULL,
			explanation TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS studies_created_at_idx ON studies (created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CreateStudy(ctx context.Context, title, source string) (Study, error) {
	id := uuid.New()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO studies(id, title, source, status, created_at, updated_at) VALUES($1,$2,$3,$4,$5,$5)`,
		id, title, source, StatusProcessing, now)
	if err != nil {
		return Study{}, err
	}
	return Study{ID: id, Title: title, Source: source, Status: StatusProcessing, CreatedAt: now, UpdatedAt: now}, nil
}

const selectStudy = `
	SELECT s.id, s.title, s.source, s.status, s.error, s.summary, s.created_at, s.updated_at,
		q.question, q.options, q.correct_index, q.explanation
	FROM studies s
	LEFT JOIN quizzes q ON q.study_id = s.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudy(row rowScanner) (Study, error) {
	var (
		st          Study
		status      string
		question    sql.NullString
		options     []string
		correct     sql.NullInt64
		explanation sql.NullString
	)
	err := row.Scan(&st.ID, &st.Title, &st.Source, &status, &st.Error, &st.Summary, &st.CreatedAt, &st.UpdatedAt,
		&question, pq.Array(&options), &correct, &explanation)
	if err != nil {
		return Study{}, err
	}
	st.Status = StudyStatus(status)
	if question.Valid {
		st.Quiz = &quiz.Quiz{
			Question:     question.String,
			Options:      options,
			CorrectIndex: int(correct.Int64),
			Explanation:  explanation.String,
		}
	}
	return st, nil
}

func (s *PostgresStore) GetStudy(ctx context.Context, id uuid.UUID) (Study, error) {
	st, err := scanStudy(s.db.QueryRowContext(ctx, selectStudy+` WHERE s.id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Study{}, ErrStudyNotFound
		}
		return Study{}, fmt.Errorf("failed to get study %s: %w", id, err)
	}
	return st, nil
}

func (s *PostgresStore) ListStudies(ctx context.Context, limit int) ([]Study, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectStudy+` ORDER BY s.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Study
	for rows.Next() {
		st, err := scanStudy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStudyStatus(ctx context.Context, id uuid.UUID, status StudyStatus, reason string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE studies SET status=$1, error=$2, updated_at=now() WHERE id=$3`, status, reason, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStudyNotFound
	}
	return nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, id uuid.UUID, summary string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE studies SET summary=$1, updated_at=now() WHERE id=$2`, summary, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStudyNotFound
	}
	return nil
}

func (s *PostgresStore) SaveQuiz(ctx context.Context, id uuid.UUID, q quiz.Quiz) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quizzes(study_id, question, options, correct_index, explanation)
		VALUES($1,$2,$3,$4,$5)
		ON CONFLICT (study_id) DO UPDATE SET question=excluded.question, options=excluded.options,
			correct_index=excluded.correct_index, explanation=excluded.explanation`,
		id, q.Question, pq.Array(pqStringArray(q.Options)), q.CorrectIndex, q.Explanation)
	return err
}

func pqStringArray(items []string) []string {
	if len(items) == 0 {
		return []string{}
	}
	return items
}
