package stream

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zimflow/internal/backend"
)

func TestReconcilerPrefixExtensions(t *testing.T) {
	var r Reconciler
	var deltas []string
	for _, s := range []string{"Hel", "Hello", "Hello wor", "Hello world"} {
		deltas = append(deltas, r.Apply(s))
	}
	assert.Equal(t, []string{"Hel", "lo", " wor", "ld"}, deltas)
	assert.Equal(t, "Hello world", r.Text())
	assert.Equal(t, "Hello world", strings.Join(deltas, ""))
	assert.Zero(t, r.Anomalies())
}

func TestReconcilerNonPrefixSnapshot(t *testing.T) {
	var r Reconciler
	assert.Equal(t, "Hello", r.Apply("Hello"))
	assert.Equal(t, "Goodbye", r.Apply("Goodbye"))
	assert.Equal(t, "HelloGoodbye", r.Text())
	assert.Equal(t, 1, r.Anomalies())

	// prefix relation is checked against the latest snapshot only
	assert.Equal(t, "!", r.Apply("Goodbye!"))
}

func TestReconcilerResentSnapshot(t *testing.T) {
	var r Reconciler
	r.Apply("abc")
	assert.Equal(t, "", r.Apply("abc"))
	assert.Equal(t, "abc", r.Text())
}

func TestReconcilerConcatenationProperty(t *testing.T) {
	final := "The mitochondria is the powerhouse of the cell."
	for step := 1; step <= len(final); step++ {
		var r Reconciler
		var joined strings.Builder
		for end := step; ; end += step {
			if end > len(final) {
				end = len(final)
			}
			joined.WriteString(r.Apply(final[:end]))
			if end == len(final) {
				break
			}
		}
		require.Equal(t, final, joined.String(), "step %d", step)
	}
}

func TestStreamYieldsDeltasInOrder(t *testing.T) {
	src := &backend.StaticStream{Snapshots: []string{"", "Hel", "Hel", "Hello", "Hello world"}}
	var ended []error
	s := New(src, func(err error) { ended = append(ended, err) })

	var deltas []string
	for s.Next() {
		deltas = append(deltas, s.Delta())
	}
	require.NoError(t, s.Err())
	assert.Equal(t, []string{"Hel", "lo", " world"}, deltas)
	assert.Equal(t, "Hello world", s.Text())
	assert.True(t, src.Closed())
	assert.Equal(t, []error{nil}, ended)

	// not restartable
	assert.False(t, s.Next())
	assert.Len(t, ended, 1)
}

func TestStreamPropagatesSourceError(t *testing.T) {
	boom := errors.New("backend dropped")
	src := &backend.StaticStream{Snapshots: []string{"par"}, Fail: boom}
	s := New(src, nil)

	text, err := s.Collect()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "par", text)
}

func TestStreamClose(t *testing.T) {
	src := &backend.StaticStream{Snapshots: []string{"a", "ab", "abc"}}
	var ended []error
	s := New(src, func(err error) { ended = append(ended, err) })

	require.True(t, s.Next())
	require.NoError(t, s.Close())
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
	assert.Equal(t, "a", s.Text())
	assert.Equal(t, []error{ErrClosed}, ended)
	require.NoError(t, s.Close())
	assert.Len(t, ended, 1)
}
