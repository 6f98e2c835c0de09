// Package handoff carries a text selection from the page a user is reading
// to the surface that will work on it. A selection is consumed by the first
// Take; watchers are told when a new one arrives.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Surface names the task a selection is meant for.
type Surface string

const (
	SurfaceSummarize Surface = "summarize"
	SurfaceQuiz      Surface = "quiz"
	SurfaceChat      Surface = "chat"
	SurfaceTranslate Surface = "translate"
)

var surfaces = map[Surface]bool{
	SurfaceSummarize: true,
	SurfaceQuiz:      true,
	SurfaceChat:      true,
	SurfaceTranslate: true,
}

// ParseSurface validates s.
func ParseSurface(s string) (Surface, error) {
	if !surfaces[Surface(s)] {
		return "", fmt.Errorf("unknown hand-off surface %q", s)
	}
	return Surface(s), nil
}

// ErrEmpty is returned by Take when nothing is pending for the surface.
var ErrEmpty = errors.New("handoff: no pending selection")

// Selection is one handed-off text.
type Selection struct {
	Surface   Surface   `json:"surface"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Channel stores at most one pending selection per surface.
type Channel interface {
	// Put replaces the pending selection and notifies watchers.
	Put(ctx context.Context, surface Surface, text string) (Selection, error)
	// Take returns and removes the pending selection, or ErrEmpty. Selections
	// older than the channel's max age are treated as absent.
	Take(ctx context.Context, surface Surface) (Selection, error)
	// Watch delivers selections put after the call until ctx ends.
	Watch(ctx context.Context, surface Surface) (<-chan Selection, error)
	Close() error
}

func expired(sel Selection, maxAge time.Duration, now time.Time) bool {
	return maxAge > 0 && now.Sub(sel.Timestamp) > maxAge
}
