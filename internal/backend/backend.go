// Package backend declares the capability surface of an inference backend and
// holds the adapters that implement it. The rest of the module depends only on
// the interfaces here.
package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
)

// Availability is the backend's answer to "can a session be created?".
type Availability string

const (
	Unavailable  Availability = "unavailable"
	Downloadable Availability = "downloadable"
	Downloading  Availability = "downloading"
	Available    Availability = "available"
)

var (
	// ErrUnavailable is returned by Create when the backend has no model capability.
	ErrUnavailable = errors.New("backend: no model capability")
	// ErrSessionDestroyed is returned by calls on a destroyed session.
	ErrSessionDestroyed = errors.New("backend: session destroyed")
)

// Progress is one download progress event. When Total is zero, Loaded is a
// fraction in [0,1]. Events may arrive out of order.
type Progress struct {
	Loaded float64
	Total  float64
}

// Options configures a new session.
type Options struct {
	SystemPrompt string
	TopK         int
	Temperature  float64
	// Monitor receives download progress while Create blocks on a model fetch.
	Monitor func(Progress)
}

// Backend creates sessions against one inference service.
type Backend interface {
	Availability(ctx context.Context) (Availability, error)
	Create(ctx context.Context, opts Options) (Session, error)
}

// Session is a configured, stateful handle. It keeps its own conversation
// history, so every prompt sees the earlier turns.
type Session interface {
	Prompt(ctx context.Context, input string) (string, error)
	// PromptStreaming yields cumulative snapshots: each one is the full text so far.
	PromptStreaming(ctx context.Context, input string) (SnapshotStream, error)
	MeasureInputUsage(ctx context.Context, input string) (int, error)
	Destroy()
}

// Image is an attachment on a user turn.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURL renders the image as a base64 data URL, sniffing the type when
// MIMEType is empty.
func (i Image) DataURL() string {
	mimeType := i.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(i.Data)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ImageSession is a Session whose model also reads images. Images sent on a
// turn stay in the conversation history like its text.
type ImageSession interface {
	Session
	PromptStreamingImages(ctx context.Context, input string, images []Image) (SnapshotStream, error)
}

// SnapshotStream iterates cumulative snapshots. Next returns false on
// completion or failure; Err tells them apart.
type SnapshotStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}
