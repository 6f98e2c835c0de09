// Package quiz parses the seven-line multiple-choice format the quiz prompt asks for:
//
//	Q: <question text>
//	A) <option 0>
//	B) <option 1>
//	C) <option 2>
//	D) <option 3>
//	Correct: <A|B|C|D>
//	Explanation: <text>
package quiz

import (
	"fmt"
	"strings"

	"zimflow/internal/apperr"
)

const (
	questionPrefix    = "Q:"
	correctPrefix     = "Correct:"
	explanationPrefix = "Explanation:"

	// NoAnswer marks a correct letter that was not one of A-D.
	NoAnswer = -1
)

var letters = map[string]int{"A": 0, "B": 1, "C": 2, "D": 3}

// Quiz is one parsed multiple-choice question. Options always has four entries.
type Quiz struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

// Correct returns the correct option, or false when the letter was not recognized.
func (q Quiz) Correct() (string, bool) {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return "", false
	}
	return q.Options[q.CorrectIndex], true
}

// IsCorrect reports whether choice is the right answer.
func (q Quiz) IsCorrect(choice int) bool {
	return q.CorrectIndex != NoAnswer && choice == q.CorrectIndex
}

// Mode selects how short input is treated.
type Mode int

const (
	// Strict rejects missing option lines and a missing Correct: line.
	Strict Mode = iota
	// Lenient fills missing options with "" and a missing answer with NoAnswer.
	Lenient
)

func (m Mode) String() string {
	if m == Lenient {
		return "lenient"
	}
	return "strict"
}

// ParseMode reads "strict" or "lenient".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	default:
		return Strict, fmt.Errorf("unknown quiz parse mode %q", s)
	}
}

// Parse reads a model response into a Quiz. Blank lines are ignored. The
// explanation is read only from a line starting with "Explanation:"; lines
// after it are appended to it. Without that line the explanation is empty.
func Parse(text string, mode Mode) (Quiz, error) {
	lines := splitLines(text)

	if len(lines) == 0 || !strings.HasPrefix(lines[0], questionPrefix) {
		return Quiz{}, apperr.New(apperr.KindMalformedQuiz, "quiz response does not start with \"Q:\"")
	}
	q := Quiz{
		Question:     strings.TrimSpace(strings.TrimPrefix(lines[0], questionPrefix)),
		Options:      make([]string, 4),
		CorrectIndex: NoAnswer,
	}

	for i := 0; i < 4; i++ {
		n := i + 1
		if n >= len(lines) || len([]rune(lines[n])) < 2 {
			if mode == Strict {
				return Quiz{}, apperr.New(apperr.KindMalformedQuiz, fmt.Sprintf("quiz response is missing option %c", 'A'+i))
			}
			continue
		}
		q.Options[i] = strings.TrimSpace(string([]rune(lines[n])[2:]))
	}

	if len(lines) <= 5 || !strings.HasPrefix(lines[5], correctPrefix) {
		if mode == Strict {
			return Quiz{}, apperr.New(apperr.KindMalformedQuiz, "quiz response is missing the \"Correct:\" line")
		}
		return q, nil
	}
	if idx, ok := letters[strings.TrimSpace(strings.TrimPrefix(lines[5], correctPrefix))]; ok {
		q.CorrectIndex = idx
	}

	if len(lines) > 6 && strings.HasPrefix(lines[6], explanationPrefix) {
		rest := append([]string{strings.TrimPrefix(lines[6], explanationPrefix)}, lines[7:]...)
		q.Explanation = strings.TrimSpace(strings.Join(rest, " "))
	}
	return q, nil
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
