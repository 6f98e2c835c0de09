package main

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"zimflow/internal/app"
	"zimflow/internal/backend"
	"zimflow/internal/httputil"
)

const maxVisionImages = 4

// visionRequest carries images as base64 or as data URLs.
type visionRequest struct {
	Message string   `json:"message" validate:"max=20000"`
	Images  []string `json:"images" validate:"max=4,dive,required"`
}

func visionChatHandler(deps app.Deps) http.HandlerFunc {
	// base64 grows payloads by a third
	maxBody := maxVisionImages*deps.Config.MaxUploadSize*4/3 + 1<<20

	return func(w http.ResponseWriter, r *http.Request) {
		conversation, ok := conversationParam(deps, w, r)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)

		var req visionRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		images := make([]backend.Image, 0, len(req.Images))
		for i, raw := range req.Images {
			img, err := decodeImage(raw)
			if err != nil {
				httputil.Fail(deps.Log, w, fmt.Sprintf("image %d is not valid base64 image data", i), err, http.StatusBadRequest)
				return
			}
			if int64(len(img.Data)) > deps.Config.MaxUploadSize {
				httputil.Fail(deps.Log, w, fmt.Sprintf("image %d too large (max %d bytes)", i, deps.Config.MaxUploadSize), nil, http.StatusBadRequest)
				return
			}
			images = append(images, img)
		}

		st, err := deps.Orchestrator.VisionChat(r.Context(), conversation, req.Message, images)
		if err != nil {
			httputil.FailTask(deps.Log, w, err)
			return
		}
		writeStream(deps, w, st)
	}
}

func endVisionChatHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversation, ok := conversationParam(deps, w, r)
		if !ok {
			return
		}
		deps.Orchestrator.EndVisionChat(conversation)
		w.WriteHeader(http.StatusNoContent)
	}
}

func listVisionChatsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"conversations": deps.Orchestrator.VisionConversations(),
		})
	}
}

func conversationParam(deps app.Deps, w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "conversation")
	if err := httputil.Validator.Var(id, "required,max=64,printascii"); err != nil {
		httputil.Fail(deps.Log, w, "invalid conversation name", err, http.StatusBadRequest)
		return "", false
	}
	return id, true
}

// decodeImage accepts "data:<mime>;base64,<data>" or bare base64. A bare
// image gets its type sniffed by the backend.
func decodeImage(raw string) (backend.Image, error) {
	var img backend.Image
	if rest, ok := strings.CutPrefix(raw, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found {
			return img, fmt.Errorf("data URL has no payload")
		}
		mimeType, isBase64 := strings.CutSuffix(header, ";base64")
		if !isBase64 {
			return img, fmt.Errorf("data URL is not base64")
		}
		if !strings.HasPrefix(mimeType, "image/") {
			return img, fmt.Errorf("data URL type %q is not an image", mimeType)
		}
		img.MIMEType = mimeType
		raw = data
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return img, err
	}
	if len(data) == 0 {
		return img, fmt.Errorf("image is empty")
	}
	img.Data = data
	return img, nil
}
