package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"zimflow/internal/app"
	"zimflow/internal/backend"
	"zimflow/internal/config"
	"zimflow/internal/handoff"
	"zimflow/internal/orchestrator"
	"zimflow/internal/prompt"
	"zimflow/internal/queue"
	"zimflow/internal/store"
)

func newTestDeps(b backend.Backend, st store.Store, q queue.Queue) app.Deps {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return app.Deps{
		Config: config.Config{
			MaxUploadSize: 1024 * 1024, // 1MB for tests
		},
		Log:          log,
		Backend:      b,
		Orchestrator: orchestrator.New(log, b),
		Handoff:      handoff.NewMemory(5 * time.Minute),
		Store:        st,
		Queue:        q,
	}
}

func serve(deps app.Deps, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	newRouter(deps).ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

// summarizingBackend serves one session that streams snapshots for the summary prompt of source.
func summarizingBackend(source string, snapshots ...string) (*backend.MockBackend, *backend.MockSession) {
	b := new(backend.MockBackend)
	s := new(backend.MockSession)
	b.On("Availability", mock.Anything).Return(backend.Available, nil)
	b.On("Create", mock.Anything, mock.Anything).Return(s, nil).Once()
	s.On("MeasureInputUsage", mock.Anything, source).Return(10, nil).Once()
	s.On("PromptStreaming", mock.Anything, prompt.Summary(source).User).
		Return(&backend.StaticStream{Snapshots: snapshots}, nil).Once()
	s.On("Destroy").Maybe()
	return b, s
}

func TestSummarizeHandler(t *testing.T) {
	const source = "Light becomes sugar."

	t.Run("buffered", func(t *testing.T) {
		b, s := summarizingBackend(source, "Plants", "Plants store light.")
		w := serve(newTestDeps(b, nil, nil), http.MethodPost, "/api/summarize", `{"text":"`+source+`"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Plants store light.", decode(t, w)["summary"])
		b.AssertExpectations(t)
		s.AssertExpectations(t)
	})

	t.Run("streamed as server-sent events", func(t *testing.T) {
		b, _ := summarizingBackend(source, "Plants", "Plants store light.")
		w := serve(newTestDeps(b, nil, nil), http.MethodPost, "/api/summarize/stream", `{"text":"`+source+`"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		body := w.Body.String()
		assert.Contains(t, body, "event: delta\ndata: {\"text\":\"Plants\"}\n\n")
		assert.Contains(t, body, "event: delta\ndata: {\"text\":\" store light.\"}\n\n")
		assert.Contains(t, body, "event: done\ndata: {\"text\":\"Plants store light.\"}\n\n")
	})

	t.Run("only the buffered route runs under a deadline", func(t *testing.T) {
		for _, tt := range []struct {
			target       string
			wantDeadline bool
		}{
			{"/api/summarize", true},
			{"/api/summarize/stream", false},
		} {
			b := new(backend.MockBackend)
			s := new(backend.MockSession)
			b.On("Availability", mock.Anything).Return(backend.Available, nil)
			b.On("Create", mock.Anything, mock.Anything).Return(s, nil).Once()
			s.On("MeasureInputUsage", mock.Anything, source).Return(10, nil).Once()
			s.On("PromptStreaming", mock.MatchedBy(func(ctx context.Context) bool {
				_, ok := ctx.Deadline()
				return ok == tt.wantDeadline
			}), mock.Anything).Return(&backend.StaticStream{Snapshots: []string{"ok"}}, nil).Once()

			w := serve(newTestDeps(b, nil, nil), http.MethodPost, tt.target, `{"text":"`+source+`"}`)

			assert.Equal(t, http.StatusOK, w.Code, tt.target)
			s.AssertExpectations(t)
		}
	})

	t.Run("empty input is a bad request", func(t *testing.T) {
		b := new(backend.MockBackend)
		w := serve(newTestDeps(b, nil, nil), http.MethodPost, "/api/summarize", `{"text":"  "}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "empty_input", decode(t, w)["kind"])
		b.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		w := serve(newTestDeps(new(backend.MockBackend), nil, nil), http.MethodPost, "/api/summarize", `{"txt":"x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTranslateHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKind   string
	}{
		{name: "same language", body: `{"text":"hola","source":"es","target":"es"}`, wantStatus: http.StatusBadRequest, wantKind: "unsupported_language"},
		{name: "unknown language", body: `{"text":"hola","source":"es","target":"xx"}`, wantStatus: http.StatusBadRequest, wantKind: "unsupported_language"},
		{name: "missing target", body: `{"text":"hola","source":"es"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := new(backend.MockBackend)
			w := serve(newTestDeps(b, nil, nil), http.MethodPost, "/api/translate", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, decode(t, w)["kind"])
			}
			b.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestStatusHandler(t *testing.T) {
	t.Run("reports availability and progress", func(t *testing.T) {
		b := new(backend.MockBackend)
		b.On("Availability", mock.Anything).Return(backend.Downloadable, nil)

		w := serve(newTestDeps(b, nil, nil), http.MethodGet, "/api/status", "")

		assert.Equal(t, http.StatusOK, w.Code)
		out := decode(t, w)
		assert.Equal(t, false, out["available"])
		assert.Len(t, out["progress"], 4)
	})

	t.Run("backend failure", func(t *testing.T) {
		b := new(backend.MockBackend)
		b.On("Availability", mock.Anything).Return(backend.Unavailable, errors.New("connection refused"))

		w := serve(newTestDeps(b, nil, nil), http.MethodGet, "/api/status", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestLanguagesHandler(t *testing.T) {
	w := serve(newTestDeps(new(backend.MockBackend), nil, nil), http.MethodGet, "/api/languages", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["languages"], len(prompt.Languages()))
}

func TestCleanupAndResetChat(t *testing.T) {
	deps := newTestDeps(new(backend.MockBackend), nil, nil)

	assert.Equal(t, http.StatusNoContent, serve(deps, http.MethodPost, "/api/cleanup", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(deps, http.MethodDelete, "/api/chat", "").Code)
}

func TestHandoffHandlers(t *testing.T) {
	deps := newTestDeps(new(backend.MockBackend), nil, nil)

	w := serve(deps, http.MethodGet, "/api/handoff/quiz", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(deps, http.MethodPost, "/api/handoff/quiz", `{"text":"Mitochondria"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "quiz", decode(t, w)["surface"])

	w = serve(deps, http.MethodGet, "/api/handoff/quiz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Mitochondria", decode(t, w)["text"])

	w = serve(deps, http.MethodGet, "/api/handoff/quiz", "")
	assert.Equal(t, http.StatusNoContent, w.Code, "a selection is consumed by the first take")

	w = serve(deps, http.MethodPost, "/api/handoff/poetry", `{"text":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(deps, http.MethodPost, "/api/handoff/chat", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudyRoutesNeedStoreAndQueue(t *testing.T) {
	w := serve(newTestDeps(new(backend.MockBackend), nil, nil), http.MethodGet, "/api/studies", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateStudyHandler(t *testing.T) {
	studyID := uuid.New()

	tests := []struct {
		name       string
		body       string
		setup      func(*store.MockStore, *queue.MockQueue)
		wantStatus int
	}{
		{
			name: "accepted and enqueued",
			body: `{"title":"Cells","text":"The cell is the unit of life."}`,
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("CreateStudy", mock.Anything, "Cells", "The cell is the unit of life.").
					Return(store.Study{ID: studyID, Status: store.StatusProcessing}, nil).Once()
				q.On("Enqueue", mock.Anything, mock.MatchedBy(func(task queue.Task) bool {
					var p queue.StudyPayload
					return task.Type == queue.TaskTypeStudy && json.Unmarshal(task.Payload, &p) == nil && p.StudyID == studyID
				})).Return(nil).Once()
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "text is required",
			body:       `{"title":"Cells"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "store failure",
			body: `{"text":"x"}`,
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("CreateStudy", mock.Anything, "", "x").Return(store.Study{}, errors.New("db error")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "enqueue failure marks the study failed",
			body: `{"text":"x"}`,
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("CreateStudy", mock.Anything, "", "x").
					Return(store.Study{ID: studyID, Status: store.StatusProcessing}, nil).Once()
				q.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("queue error")).Times(3)
				s.On("UpdateStudyStatus", mock.Anything, studyID, store.StatusFailed, mock.Anything).Return(nil).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockStore := new(store.MockStore)
			mockQueue := new(queue.MockQueue)
			if tt.setup != nil {
				tt.setup(mockStore, mockQueue)
			}

			w := serve(newTestDeps(new(backend.MockBackend), mockStore, mockQueue), http.MethodPost, "/api/studies", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusAccepted {
				assert.Equal(t, studyID.String(), decode(t, w)["study_id"])
			}
			mockStore.AssertExpectations(t)
			mockQueue.AssertExpectations(t)
		})
	}
}

func TestGetStudyHandler(t *testing.T) {
	studyID := uuid.New()

	tests := []struct {
		name       string
		id         string
		setup      func(*store.MockStore)
		wantStatus int
	}{
		{
			name: "found",
			id:   studyID.String(),
			setup: func(s *store.MockStore) {
				s.On("GetStudy", mock.Anything, studyID).
					Return(store.Study{ID: studyID, Status: store.StatusReady, Summary: "Cells."}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{name: "invalid id", id: "not-a-uuid", wantStatus: http.StatusBadRequest},
		{
			name: "not found",
			id:   studyID.String(),
			setup: func(s *store.MockStore) {
				s.On("GetStudy", mock.Anything, studyID).Return(store.Study{}, store.ErrStudyNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "store error",
			id:   studyID.String(),
			setup: func(s *store.MockStore) {
				s.On("GetStudy", mock.Anything, studyID).Return(store.Study{}, errors.New("db error")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockStore := new(store.MockStore)
			if tt.setup != nil {
				tt.setup(mockStore)
			}

			w := serve(newTestDeps(new(backend.MockBackend), mockStore, new(queue.MockQueue)), http.MethodGet, "/api/studies/"+tt.id, "")

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				out := decode(t, w)
				assert.Equal(t, "Cells.", out["summary"])
				assert.Equal(t, string(store.StatusReady), out["status"])
			}
			mockStore.AssertExpectations(t)
		})
	}
}

func TestListStudiesHandler(t *testing.T) {
	mockStore := new(store.MockStore)
	mockStore.On("ListStudies", mock.Anything, 5).Return([]store.Study{{ID: uuid.New()}, {ID: uuid.New()}}, nil).Once()
	deps := newTestDeps(new(backend.MockBackend), mockStore, new(queue.MockQueue))

	w := serve(deps, http.MethodGet, "/api/studies?limit=5", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["studies"], 2)

	w = serve(deps, http.MethodGet, "/api/studies?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockStore.AssertExpectations(t)
}

func TestExtractHandler(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		content     []byte
		wantStatus  int
		wantText    string
	}{
		{name: "plain text", filename: "notes.txt", contentType: "text/plain", content: []byte("Hello"), wantStatus: http.StatusOK, wantText: "Hello"},
		{name: "type from extension", filename: "notes.txt", content: []byte("content"), wantStatus: http.StatusOK, wantText: "content"},
		{name: "file too large", filename: "large.txt", contentType: "text/plain", content: make([]byte, 2*1024*1024), wantStatus: http.StatusBadRequest},
		{name: "unsupported extension", filename: "notes.docx", content: []byte("content"), wantStatus: http.StatusBadRequest},
		{name: "unsupported Content-Type", filename: "notes.doc", contentType: "application/msword", content: []byte("content"), wantStatus: http.StatusBadRequest},
		{name: "broken pdf", filename: "paper.pdf", contentType: "application/pdf", content: []byte("not a pdf"), wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := createMultipartRequest(tt.filename, tt.contentType, tt.content)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			extractHandler(newTestDeps(new(backend.MockBackend), nil, nil))(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, decode(t, w)["text"])
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/extract", nil)
		req.Header.Set("Content-Type", "multipart/form-data")
		w := httptest.NewRecorder()

		extractHandler(newTestDeps(new(backend.MockBackend), nil, nil))(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func createMultipartRequest(filename, contentType string, content []byte) (*http.Request, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)}
	if contentType != "" {
		h["Content-Type"] = []string{contentType}
	}

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}
