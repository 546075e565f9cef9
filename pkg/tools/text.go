// Package tools holds the router.Tool implementations that answer questions.
package tools

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pario-ai/benchrun/pkg/models"
	"github.com/pario-ai/benchrun/pkg/router"
)

// TextName is the name of the text tool.
const TextName = "text"

var (
	numberRe = regexp.MustCompile(`-?\d+\.?\d*`)
	quotedRe = regexp.MustCompile(`["“']([^"”']+)["”']`)
)

var opposites = map[string]string{
	"left": "right", "right": "left",
	"up": "down", "down": "up",
	"true": "false", "false": "true",
	"yes": "no", "no": "yes",
	"hot": "cold", "cold": "hot",
	"in": "out", "out": "in",
}

// Text answers questions that are plain string transforms: an explicit
// operation prefix such as "reverse:" or "word_count:", or a sentence
// written backwards that asks for the opposite of a word.
type Text struct{}

// NewText creates the text tool.
func NewText() *Text { return &Text{} }

func (t *Text) Name() string { return TextName }

func (t *Text) Invoke(_ context.Context, q models.Question) (string, error) {
	if out, ok := Transform(q.Text); ok {
		return out, nil
	}
	if router.LooksReversed(q.Text) {
		decoded := router.Reverse(q.Text)
		if answer, ok := opposite(decoded); ok {
			return answer, nil
		}
		return "", &models.ToolError{
			Kind:    models.KindInvocationError,
			Tool:    TextName,
			Message: "decoded reversed text but found no direct answer: " + decoded,
		}
	}
	return "", &models.ToolError{Kind: models.KindInvocationError, Tool: TextName, Message: "not a text operation"}
}

// Transform applies an operation prefix to the rest of input.
func Transform(input string) (string, bool) {
	op, text, ok := strings.Cut(input, ":")
	if !ok {
		return "", false
	}
	text = strings.TrimSpace(text)
	switch strings.TrimSpace(op) {
	case "reverse":
		decoded := router.Reverse(text)
		if answer, ok := opposite(decoded); ok {
			return answer, true
		}
		return decoded, true
	case "upper":
		return strings.ToUpper(text), true
	case "lower":
		return strings.ToLower(text), true
	case "count":
		return strconv.Itoa(utf8.RuneCountInString(text)), true
	case "extract_numbers":
		nums := numberRe.FindAllString(text, -1)
		if len(nums) == 0 {
			return "No numbers found", true
		}
		return strings.Join(nums, ", "), true
	case "word_count":
		return strconv.Itoa(len(strings.Fields(text))), true
	}
	return "", false
}

// opposite answers "write the opposite of the word X" style sentences.
func opposite(sentence string) (string, bool) {
	lower := strings.ToLower(sentence)
	if !strings.Contains(lower, "opposite") {
		return "", false
	}
	if m := quotedRe.FindStringSubmatch(lower); m != nil {
		if o, ok := opposites[strings.TrimSpace(m[1])]; ok {
			return o, true
		}
	}
	for _, w := range []string{"left", "right"} {
		if strings.Contains(lower, w) {
			return opposites[w], true
		}
	}
	return "", false
}
