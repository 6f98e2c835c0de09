package orchestrator

import (
	"errors"
	"log/slog"
	"sync"

	"zimflow/internal/apperr"
	"zimflow/internal/backend"
	"zimflow/internal/session"
	"zimflow/internal/stream"
)

// taskContext serializes the calls of one task and remembers the stream
// that is currently reading from its session.
type taskContext struct {
	log      *slog.Logger
	sessions *session.Manager
	mu       sync.Mutex

	activeMu sync.Mutex
	active   backend.SnapshotStream
}

// supersede stops the stream of an earlier call, if it is still running.
func (tc *taskContext) supersede() {
	tc.activeMu.Lock()
	defer tc.activeMu.Unlock()
	if tc.active != nil {
		_ = tc.active.Close()
		tc.active = nil
	}
}

func (tc *taskContext) release(src backend.SnapshotStream) {
	tc.activeMu.Lock()
	defer tc.activeMu.Unlock()
	if tc.active == src {
		tc.active = nil
	}
}

// track makes src the active stream and wraps it in a reconciling stream.
// onSuccess receives the full text when the stream completes.
func (tc *taskContext) track(sess *session.Session, src backend.SnapshotStream, onSuccess func(string)) *stream.Stream {
	tc.activeMu.Lock()
	tc.active = src
	tc.activeMu.Unlock()

	var st *stream.Stream
	st = stream.New(src, func(err error) {
		tc.release(src)
		if n := st.Anomalies(); n > 0 {
			tc.log.Debug("non-prefix snapshots in stream", "anomalies", n)
		}
		switch {
		case errors.Is(err, stream.ErrClosed):
		case err != nil:
			tc.fail(sess, err)
		case onSuccess != nil:
			onSuccess(st.Text())
		}
	})
	return st
}

// fail destroys sess after a failure, unless it was already replaced or destroyed.
func (tc *taskContext) fail(sess *session.Session, err error) {
	if errors.Is(err, apperr.ErrSessionInvalidated) {
		return
	}
	tc.log.Warn("task failed, destroying session", "session_id", sess.ID, "kind", apperr.KindOf(err), "err", err)
	tc.sessions.Discard(sess)
}
