package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zimflow/internal/quiz"
)

// fakeRow feeds scanStudy the values a LEFT JOIN row would carry.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if scanner, ok := d.(interface{ Scan(any) error }); ok {
			if err := scanner.Scan(r.values[i]); err != nil {
				return err
			}
			continue
		}
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return errors.New("unexpected scan target")
		}
	}
	return nil
}

func TestScanStudyWithQuiz(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()
	st, err := scanStudy(fakeRow{values: []any{
		id.String(), "Cells", "Cells divide.", "ready", "", "# Overview", now, now,
		"What divides?", "{Cells,Rocks,Water,Air}", int64(0), "Cells divide.",
	}})
	require.NoError(t, err)

	assert.Equal(t, id, st.ID)
	assert.Equal(t, StatusReady, st.Status)
	require.NotNil(t, st.Quiz)
	assert.Equal(t, quiz.Quiz{
		Question:     "What divides?",
		Options:      []string{"Cells", "Rocks", "Water", "Air"},
		CorrectIndex: 0,
		Explanation:  "Cells divide.",
	}, *st.Quiz)
}

func TestScanStudyWithoutQuiz(t *testing.T) {
	now := time.Now().UTC()
	st, err := scanStudy(fakeRow{values: []any{
		uuid.New().String(), "", "text", "processing", "", "", now, now,
		nil, nil, nil, nil,
	}})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, st.Status)
	assert.Nil(t, st.Quiz)
}

func TestPqStringArrayNeverNil(t *testing.T) {
	assert.NotNil(t, pqStringArray(nil))
	assert.Equal(t, []string{"a"}, pqStringArray([]string{"a"}))
}
