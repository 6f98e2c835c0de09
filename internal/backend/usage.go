package backend

import (
	"strings"
	"unicode/utf8"
)

// EstimateTokens approximates token usage by whitespace-delimited words, with
// words longer than four characters counted once per started four characters.
// Neither local adapter exposes a tokenizer, so this backs MeasureInputUsage.
func EstimateTokens(text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		n += (utf8.RuneCountInString(w) + 3) / 4
	}
	return n
}
