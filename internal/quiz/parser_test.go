package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zimflow/internal/apperr"
)

const wellFormed = `Q: What is 2+2?
A) 3
B) 4
C) 5
D) 22
Correct: B
Explanation: Basic arithmetic.`

func TestParseWellFormed(t *testing.T) {
	q, err := Parse(wellFormed, Strict)
	require.NoError(t, err)
	assert.Equal(t, Quiz{
		Question:     "What is 2+2?",
		Options:      []string{"3", "4", "5", "22"},
		CorrectIndex: 1,
		Explanation:  "Basic arithmetic.",
	}, q)

	answer, ok := q.Correct()
	assert.True(t, ok)
	assert.Equal(t, "4", answer)
	assert.True(t, q.IsCorrect(1))
	assert.False(t, q.IsCorrect(0))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		mode      Mode
		want      Quiz
		malformed bool
	}{
		{
			name:  "unrecognized correct letter is representable",
			input: "Q: Pick\nA) a\nB) b\nC) c\nD) d\nCorrect: E\nExplanation: none",
			mode:  Strict,
			want:  Quiz{Question: "Pick", Options: []string{"a", "b", "c", "d"}, CorrectIndex: NoAnswer, Explanation: "none"},
		},
		{
			name:      "missing Q: prefix",
			input:     "What is 2+2?\nA) 3\nB) 4\nC) 5\nD) 22\nCorrect: B\nExplanation: Basic arithmetic.",
			mode:      Lenient,
			malformed: true,
		},
		{
			name:      "empty response",
			input:     "  \n ",
			mode:      Lenient,
			malformed: true,
		},
		{
			name:  "explanation absent",
			input: "Q: Pick\nA) a\nB) b\nC) c\nD) d\nCorrect: D",
			mode:  Strict,
			want:  Quiz{Question: "Pick", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 3},
		},
		{
			name:  "line six without Explanation: prefix is not an explanation",
			input: "Q: Pick\nA) a\nB) b\nC) c\nD) d\nCorrect: C\nHope this helps!\nGood luck",
			mode:  Strict,
			want:  Quiz{Question: "Pick", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 2},
		},
		{
			name:  "blank lines and surrounding whitespace",
			input: "\n  Q:   Pick  \n\nA)  a \r\nB) b\nC) c\nD) d\n\nCorrect:  A \nExplanation: first\nsecond line",
			mode:  Strict,
			want:  Quiz{Question: "Pick", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 0, Explanation: "first second line"},
		},
		{
			name:      "strict rejects missing options",
			input:     "Q: Pick\nA) a\nB) b",
			mode:      Strict,
			malformed: true,
		},
		{
			name:  "lenient fills missing options",
			input: "Q: Pick\nA) a\nB) b",
			mode:  Lenient,
			want:  Quiz{Question: "Pick", Options: []string{"a", "b", "", ""}, CorrectIndex: NoAnswer},
		},
		{
			name:      "strict rejects missing Correct: line",
			input:     "Q: Pick\nA) a\nB) b\nC) c\nD) d\nAnswer is B",
			mode:      Strict,
			malformed: true,
		},
		{
			name:  "lenient tolerates missing Correct: line",
			input: "Q: Pick\nA) a\nB) b\nC) c\nD) d\nAnswer is B",
			mode:  Lenient,
			want:  Quiz{Question: "Pick", Options: []string{"a", "b", "c", "d"}, CorrectIndex: NoAnswer},
		},
		{
			name:      "strict rejects one-character option line",
			input:     "Q: Pick\nA\nB) b\nC) c\nD) d\nCorrect: B",
			mode:      Strict,
			malformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input, tt.mode)
			if tt.malformed {
				assert.ErrorIs(t, err, apperr.ErrMalformedQuiz)
				assert.Equal(t, Quiz{}, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got.Options, 4)
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Lenient")
	require.NoError(t, err)
	assert.Equal(t, Lenient, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Strict, m)
	assert.Equal(t, "strict", m.String())

	_, err = ParseMode("loose")
	assert.Error(t, err)
}
