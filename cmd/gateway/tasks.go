package main

import (
	"net/http"

	"zimflow/internal/app"
	"zimflow/internal/apperr"
	"zimflow/internal/httputil"
	"zimflow/internal/stream"
)

type summarizeRequest struct {
	Text string `json:"text" validate:"max=200000"`
}

type quizRequest struct {
	Summary string `json:"summary" validate:"max=200000"`
}

type chatRequest struct {
	Message string `json:"message" validate:"max=20000"`
}

type translateRequest struct {
	Text   string `json:"text" validate:"max=200000"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

func statusHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		availability, err := deps.Orchestrator.CheckAvailability(r.Context())
		if err != nil {
			httputil.FailTask(deps.Log, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"state":     availability.State,
			"available": availability.Available,
			"progress":  deps.Orchestrator.Progress(),
		})
	}
}

func languagesHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"languages": deps.Orchestrator.Languages()})
	}
}

func summarizeHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req summarizeRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		summary, err := deps.Orchestrator.Summarize(r.Context(), req.Text)
		if err != nil {
			httputil.FailTask(deps.Log, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"summary": summary})
	}
}

// summarizeStreamHandler relays the summary as server-sent events.
func summarizeStreamHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req summarizeRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		st, err := deps.Orchestrator.SummarizeStream(r.Context(), req.Text)
		if err != nil {
			httputil.FailTask(deps.Log, w, err)
			return
		}
		writeStream(deps, w, st)
	}
}

func quizHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req quizRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		q, err := deps.Orchestrator.GenerateQuiz(r.Context(), req.Summary)
		if err != nil {
			httputil.FailTask(deps.Log, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, q)
	}
}

func chatHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		st, err := deps.Orchestrator.Chat(r.Context(), req.Message)
		if err != nil {
			httputil.FailTask(deps.Log, w, err)
			return
		}
		writeStream(deps, w, st)
	}
}

func resetChatHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Orchestrator.ResetChat()
		w.WriteHeader(http.StatusNoContent)
	}
}

func translateHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		out, err := deps.Orchestrator.Translate(r.Context(), req.Text, req.Source, req.Target)
		if err != nil {
			httputil.FailTask(deps.Log, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"translation": out,
			"source":      req.Source,
			"target":      req.Target,
		})
	}
}

func cleanupHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Orchestrator.Cleanup()
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeStream relays deltas as "delta" events and ends with "done" carrying
// the full text, or "error" carrying the failure.
func writeStream(deps app.Deps, w http.ResponseWriter, st *stream.Stream) {
	sse, err := httputil.NewSSE(w)
	if err != nil {
		_ = st.Close()
		httputil.Fail(deps.Log, w, "streaming not supported", err, http.StatusInternalServerError)
		return
	}
	for st.Next() {
		if err := sse.Send("delta", map[string]string{"text": st.Delta()}); err != nil {
			deps.Log.Debug("client went away mid-stream", "err", err)
			_ = st.Close()
			return
		}
	}
	if err := st.Err(); err != nil {
		deps.Log.Warn("stream ended with error", "kind", apperr.KindOf(err), "err", err)
		_ = sse.Send("error", map[string]string{"error": apperr.Status(err), "kind": string(apperr.KindOf(err))})
		return
	}
	_ = sse.Send("done", map[string]string{"text": st.Text()})
}
