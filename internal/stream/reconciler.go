// Package stream turns cumulative snapshots from the backend into the
// append-only deltas consumers render.
package stream

import (
	"errors"
	"strings"

	"zimflow/internal/backend"
)

// ErrClosed is passed to the done callback when the consumer closed the
// stream before it completed.
var ErrClosed = errors.New("stream: closed before completion")

// Reconciler diffs consecutive cumulative snapshots. The zero value is ready.
type Reconciler struct {
	previous    string
	accumulated strings.Builder
	anomalies   int
}

// Apply returns the new text carried by snapshot. When snapshot does not
// extend the previous one the backend has resent an altered text; the whole
// snapshot is then treated as the delta and counted as an anomaly.
func (r *Reconciler) Apply(snapshot string) string {
	var delta string
	if strings.HasPrefix(snapshot, r.previous) {
		delta = snapshot[len(r.previous):]
	} else {
		delta = snapshot
		r.anomalies++
	}
	r.accumulated.WriteString(delta)
	r.previous = snapshot
	return delta
}

// Text is the concatenation of every delta returned so far.
func (r *Reconciler) Text() string { return r.accumulated.String() }

// Anomalies counts non-prefix snapshots seen.
func (r *Reconciler) Anomalies() int { return r.anomalies }

// Stream yields reconciled deltas from a snapshot source, one pass only.
//
//	for s.Next() {
//		render(s.Delta())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	src    backend.SnapshotStream
	rec    Reconciler
	delta  string
	err    error
	done   bool
	onDone func(error)
}

// New wraps src. onDone, if set, runs once when the stream ends or is closed;
// it receives nil on completion, the source error on failure and ErrClosed
// after an early Close.
func New(src backend.SnapshotStream, onDone func(error)) *Stream {
	return &Stream{src: src, onDone: onDone}
}

// Next advances to the next delta. Snapshots that add no text are skipped.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for s.src.Next() {
		delta := s.rec.Apply(s.src.Current())
		if delta == "" {
			continue
		}
		s.delta = delta
		return true
	}
	err := s.src.Err()
	s.finish(err, err)
	return false
}

// Delta is the text added by the last successful Next.
func (s *Stream) Delta() string { return s.delta }

// Text is the full response reconstructed so far.
func (s *Stream) Text() string { return s.rec.Text() }

// Anomalies counts non-prefix snapshots seen so far.
func (s *Stream) Anomalies() int { return s.rec.Anomalies() }

// Err reports why the stream ended, nil on normal completion.
func (s *Stream) Err() error { return s.err }

// Close stops the stream early and releases the source.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	return s.finish(nil, ErrClosed)
}

// Collect drains the stream and returns the full text.
func (s *Stream) Collect() (string, error) {
	for s.Next() {
	}
	return s.Text(), s.Err()
}

func (s *Stream) finish(err, reason error) error {
	closeErr := s.src.Close()
	s.done = true
	s.err = err
	s.delta = ""
	if s.onDone != nil {
		s.onDone(reason)
		s.onDone = nil
	}
	return closeErr
}
