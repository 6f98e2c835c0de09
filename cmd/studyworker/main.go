package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"zimflow/internal/app"
	"zimflow/internal/apperr"
	"zimflow/internal/httputil"
	"zimflow/internal/queue"
	"zimflow/internal/store"
)

func main() {
	var deps app.Deps
	deps, err := app.Build(queue.WithDeadLetter(func(ctx context.Context, task queue.Task, err error) {
		markFailed(ctx, deps, task, err)
	}))
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	if deps.Store == nil || deps.Queue == nil {
		deps.Log.Error("study worker needs DB_URL and QUEUE_URL")
		os.Exit(1)
	}
	deps.Log.Info("study worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeStudy, func(ctx context.Context, task queue.Task) error {
			var payload queue.StudyPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return err
			}
			return handleStudy(ctx, deps, payload)
		})
	})

	g.Go(func() error {
		return httputil.ServeHealth(ctx, deps.Log, deps.Config.HealthPort, "studyworker")
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("study worker stopped", "err", err)
	}
	deps.Orchestrator.Cleanup()
}

// handleStudy summarizes a study, builds its quiz and marks it ready.
// Failures that a retry cannot fix, including a backend with no model
// capability, mark the study failed and return nil.
func handleStudy(ctx context.Context, deps app.Deps, payload queue.StudyPayload) error {
	log := deps.Log.With("study_id", payload.StudyID)

	st, err := deps.Store.GetStudy(ctx, payload.StudyID)
	if errors.Is(err, store.ErrStudyNotFound) {
		log.Warn("study vanished before processing")
		return nil
	}
	if err != nil {
		return err
	}
	if st.Status != store.StatusProcessing {
		log.Info("study already processed", "status", st.Status)
		return nil
	}

	summary, err := deps.Orchestrator.Summarize(ctx, st.Source)
	if err != nil {
		return settle(ctx, deps, log, st, "summarize", err)
	}
	if err := deps.Store.SaveSummary(ctx, st.ID, summary); err != nil {
		return err
	}

	q, err := deps.Orchestrator.GenerateQuiz(ctx, summary)
	if err != nil {
		return settle(ctx, deps, log, st, "quiz", err)
	}
	if err := deps.Store.SaveQuiz(ctx, st.ID, q); err != nil {
		return err
	}

	log.Info("study ready")
	return deps.Store.UpdateStudyStatus(ctx, st.ID, store.StatusReady, "")
}

// settle marks the study failed for permanent errors and hands the rest back for retry.
func settle(ctx context.Context, deps app.Deps, log *slog.Logger, st store.Study, step string, err error) error {
	if !permanent(err) {
		return fmt.Errorf("%s: %w", step, err)
	}
	log.Warn("study cannot be processed", "step", step, "kind", apperr.KindOf(err), "err", err)
	return deps.Store.UpdateStudyStatus(ctx, st.ID, store.StatusFailed, err.Error())
}

func permanent(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindEmptyInput, apperr.KindInputTooLong, apperr.KindUnsupportedLanguage, apperr.KindBackendUnavailable:
		return true
	}
	return false
}

// markFailed is the dead letter handler: the task ran out of retries.
func markFailed(ctx context.Context, deps app.Deps, task queue.Task, cause error) {
	var payload queue.StudyPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		deps.Log.Error("dead letter with unreadable payload", "err", err)
		return
	}
	if err := deps.Store.UpdateStudyStatus(ctx, payload.StudyID, store.StatusFailed, cause.Error()); err != nil {
		deps.Log.Error("failed to mark study failed", "study_id", payload.StudyID, "err", err)
	}
}
