package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"zimflow/internal/app"
	"zimflow/internal/httputil"
	"zimflow/internal/queue"
	"zimflow/internal/quiz"
	"zimflow/internal/store"
)

type createStudyRequest struct {
	Title string `json:"title" validate:"max=200"`
	Text  string `json:"text" validate:"required,max=200000"`
}

type studyResponse struct {
	ID        uuid.UUID         `json:"id"`
	Title     string            `json:"title"`
	Status    store.StudyStatus `json:"status"`
	Error     string            `json:"error,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Quiz      *quiz.Quiz        `json:"quiz,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func toStudyResponse(st store.Study) studyResponse {
	return studyResponse{
		ID:        st.ID,
		Title:     st.Title,
		Status:    st.Status,
		Error:     st.Error,
		Summary:   st.Summary,
		Quiz:      st.Quiz,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
}

func createStudyHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req createStudyRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		st, err := deps.Store.CreateStudy(ctx, req.Title, req.Text)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist study", err, http.StatusInternalServerError)
			return
		}

		body, err := json.Marshal(queue.StudyPayload{StudyID: st.ID})
		if err != nil {
			failStudy(ctx, deps, w, "marshal payload failed", err, st.ID)
			return
		}
		task := queue.Task{Type: queue.TaskTypeStudy, Payload: body}
		if err := queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond); err != nil {
			failStudy(ctx, deps, w, "failed to enqueue study; please retry", err, st.ID)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"study_id": st.ID.String(),
			"status":   st.Status,
		})
	}
}

// failStudy marks the study failed and writes a 500.
func failStudy(ctx context.Context, deps app.Deps, w http.ResponseWriter, message string, err error, studyID uuid.UUID) {
	log := deps.Log.With("study_id", studyID)
	if upErr := deps.Store.UpdateStudyStatus(ctx, studyID, store.StatusFailed, message); upErr != nil {
		log.Error("failed to mark study failed", "err", upErr)
	}
	httputil.Fail(log, w, message, err, http.StatusInternalServerError)
}

func getStudyHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid study id", err, http.StatusBadRequest)
			return
		}
		st, err := deps.Store.GetStudy(r.Context(), id)
		if errors.Is(err, store.ErrStudyNotFound) {
			httputil.Fail(deps.Log, w, "study not found", err, http.StatusNotFound)
			return
		}
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load study", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toStudyResponse(st))
	}
}

func listStudiesHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 100 {
				httputil.Fail(deps.Log, w, "limit must be between 1 and 100", err, http.StatusBadRequest)
				return
			}
			limit = n
		}
		studies, err := deps.Store.ListStudies(r.Context(), limit)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list studies", err, http.StatusInternalServerError)
			return
		}
		out := make([]studyResponse, 0, len(studies))
		for _, st := range studies {
			out = append(out, toStudyResponse(st))
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"studies": out})
	}
}
