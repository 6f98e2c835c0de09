package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"zimflow/internal/app"
	"zimflow/internal/extract"
	"zimflow/internal/httputil"
)

func extractHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		// Validate file size before parsing
		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxFileSize+1<<20)

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		contentType, err := extract.DetectType(header.Filename, header.Header.Get("Content-Type"))
		if err != nil {
			httputil.Fail(deps.Log, w, err.Error(), err, http.StatusBadRequest)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}
		text, err := extract.Text(contentType, content)
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, extract.ErrUnsupportedType) {
				status = http.StatusBadRequest
			}
			httputil.Fail(deps.Log, w, "could not extract text from file", err, status)
			return
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"filename": header.Filename,
			"type":     contentType,
			"text":     text,
		})
	}
}
