package router

import (
	"strings"
	"unicode"
)

var commonWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true, "to": true,
	"in": true, "is": true, "if": true, "you": true, "this": true, "that": true,
	"what": true, "write": true, "word": true, "as": true, "answer": true,
	"sentence": true, "understand": true, "opposite": true, "how": true,
	"many": true, "which": true, "who": true, "for": true, "with": true,
}

// LooksReversed reports whether text reads better backwards than forwards,
// judged by how many common English words each direction contains.
func LooksReversed(text string) bool {
	forward := wordScore(text)
	backward := wordScore(Reverse(text))
	return backward > forward && backward >= 2
}

// Reverse returns s with its runes in reverse order.
func Reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func wordScore(text string) int {
	n := 0
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if commonWords[w] {
			n++
		}
	}
	return n
}
