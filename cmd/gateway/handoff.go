package main

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zimflow/internal/app"
	"zimflow/internal/handoff"
	"zimflow/internal/httputil"
)

type handoffRequest struct {
	Text string `json:"text" validate:"required,max=200000"`
}

func surfaceParam(deps app.Deps, w http.ResponseWriter, r *http.Request) (handoff.Surface, bool) {
	surface, err := handoff.ParseSurface(chi.URLParam(r, "surface"))
	if err != nil {
		httputil.Fail(deps.Log, w, "unknown surface", err, http.StatusNotFound)
		return "", false
	}
	return surface, true
}

func putHandoffHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surface, ok := surfaceParam(deps, w, r)
		if !ok {
			return
		}
		var req handoffRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		sel, err := deps.Handoff.Put(r.Context(), surface, req.Text)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to store selection", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, sel)
	}
}

func takeHandoffHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surface, ok := surfaceParam(deps, w, r)
		if !ok {
			return
		}
		sel, err := deps.Handoff.Take(r.Context(), surface)
		if errors.Is(err, handoff.ErrEmpty) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read selection", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, sel)
	}
}

// handoffEventsHandler streams a "selection" event per hand-off until the
// client disconnects.
func handoffEventsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surface, ok := surfaceParam(deps, w, r)
		if !ok {
			return
		}
		events, err := deps.Handoff.Watch(r.Context(), surface)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to watch selections", err, http.StatusInternalServerError)
			return
		}
		sse, err := httputil.NewSSE(w)
		if err != nil {
			httputil.Fail(deps.Log, w, "streaming not supported", err, http.StatusInternalServerError)
			return
		}
		for sel := range events {
			if err := sse.Send("selection", sel); err != nil {
				return
			}
		}
	}
}
