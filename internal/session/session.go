package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"zimflow/internal/apperr"
	"zimflow/internal/backend"
)

// Config is the part of a session that decides whether it can be reused.
type Config struct {
	SystemPrompt string
	TopK         int
	Temperature  float64
}

// Session is a Ready backend session owned by a Manager. Calls made after the
// manager destroyed it fail with SessionInvalidated.
type Session struct {
	ID     uuid.UUID
	cfg    Config
	handle backend.Session
	done   chan struct{}
	once   sync.Once
}

func newSession(cfg Config, handle backend.Session) *Session {
	return &Session{ID: uuid.New(), cfg: cfg, handle: handle, done: make(chan struct{})}
}

// Config returns the configuration the session was created with.
func (s *Session) Config() Config { return s.cfg }

// Done is closed when the session is destroyed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Valid reports whether the session has not been destroyed.
func (s *Session) Valid() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Session) Prompt(ctx context.Context, input string) (string, error) {
	if !s.Valid() {
		return "", invalidated()
	}
	out, err := s.handle.Prompt(ctx, input)
	if err != nil {
		return "", s.mapErr(err)
	}
	return out, nil
}

// PromptStreaming returns a cumulative-snapshot stream that ends with
// SessionInvalidated as soon as the session is destroyed, whatever the
// backend stream is doing. Close may be called from any goroutine.
func (s *Session) PromptStreaming(ctx context.Context, input string) (backend.SnapshotStream, error) {
	if !s.Valid() {
		return nil, invalidated()
	}
	src, err := s.handle.PromptStreaming(ctx, input)
	if err != nil {
		return nil, s.mapErr(err)
	}
	return newGuardedStream(s, src), nil
}

// PromptStreamingImages is PromptStreaming with images attached to the turn.
// It fails with ImagesUnsupported when the backend session reads text only.
func (s *Session) PromptStreamingImages(ctx context.Context, input string, images []backend.Image) (backend.SnapshotStream, error) {
	if len(images) == 0 {
		return s.PromptStreaming(ctx, input)
	}
	if !s.Valid() {
		return nil, invalidated()
	}
	handle, ok := s.handle.(backend.ImageSession)
	if !ok {
		return nil, apperr.New(apperr.KindImagesUnsupported, "the model does not accept images")
	}
	src, err := handle.PromptStreamingImages(ctx, input, images)
	if err != nil {
		return nil, s.mapErr(err)
	}
	return newGuardedStream(s, src), nil
}

func (s *Session) MeasureInputUsage(ctx context.Context, input string) (int, error) {
	if !s.Valid() {
		return 0, invalidated()
	}
	n, err := s.handle.MeasureInputUsage(ctx, input)
	if err != nil {
		return 0, s.mapErr(err)
	}
	return n, nil
}

func (s *Session) destroy() {
	s.once.Do(func() {
		close(s.done)
		s.handle.Destroy()
	})
}

func (s *Session) mapErr(err error) error {
	if !s.Valid() || errors.Is(err, backend.ErrSessionDestroyed) {
		return invalidated()
	}
	return apperr.Backend(err)
}

func invalidated() error {
	return apperr.New(apperr.KindSessionInvalidated, "session was destroyed while in use")
}

// guardedStream pumps the backend stream on its own goroutine so that a
// destroyed session or a Close from another goroutine ends Next immediately.
// The pump hands snapshots over an unbuffered channel and never reads ahead
// of the consumer.
type guardedStream struct {
	sess      *Session
	src       backend.SnapshotStream
	snapshots chan string
	stop      chan struct{}
	stopOnce  sync.Once
	srcErr    error
	current   string
	err       error
	ended     bool
}

func newGuardedStream(s *Session, src backend.SnapshotStream) *guardedStream {
	g := &guardedStream{
		sess:      s,
		src:       src,
		snapshots: make(chan string),
		stop:      make(chan struct{}),
	}
	go g.pump()
	return g
}

func (g *guardedStream) pump() {
	defer close(g.snapshots)
	for g.src.Next() {
		select {
		case g.snapshots <- g.src.Current():
		case <-g.stop:
			return
		case <-g.sess.done:
			return
		}
	}
	g.srcErr = g.src.Err()
}

func (g *guardedStream) Next() bool {
	if g.ended {
		return false
	}
	select {
	case snap, ok := <-g.snapshots:
		if ok {
			g.current = snap
			return true
		}
		switch {
		case !g.sess.Valid():
			g.fail(invalidated())
		case g.srcErr != nil:
			g.fail(g.sess.mapErr(g.srcErr))
		default:
			g.fail(g.stoppedErr())
		}
	case <-g.sess.done:
		g.fail(invalidated())
	case <-g.stop:
		g.fail(apperr.New(apperr.KindSessionInvalidated, "stream superseded by a newer request"))
	}
	return false
}

// stoppedErr is nil for a normal end and set when the pump quit on Close.
func (g *guardedStream) stoppedErr() error {
	select {
	case <-g.stop:
		return apperr.New(apperr.KindSessionInvalidated, "stream superseded by a newer request")
	default:
		return nil
	}
}

func (g *guardedStream) fail(err error) {
	g.ended = true
	g.err = err
	_ = g.src.Close()
}

func (g *guardedStream) Current() string { return g.current }

func (g *guardedStream) Err() error { return g.err }

func (g *guardedStream) Close() error {
	var err error
	g.stopOnce.Do(func() {
		close(g.stop)
		err = g.src.Close()
	})
	return err
}
