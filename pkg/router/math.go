package router

import (
	"regexp"
	"strings"
)

var (
	exprCharsRe = regexp.MustCompile(`^[0-9a-z\s.,+\-*/%^()]+$`)
	binaryOpRe  = regexp.MustCompile(`[0-9)]\s*(\*\*|[-+*/%^])\s*[-0-9(a-z]`)
	wordRe      = regexp.MustCompile(`[a-z]+`)
)

var exprLeadIns = []string{
	"what is", "what's", "calculate", "compute", "evaluate", "solve", "math:",
}

// Functions allowed inside an arithmetic expression.
var exprFuncs = map[string]bool{
	"abs": true, "ceil": true, "floor": true, "round": true, "max": true, "min": true,
}

// Expression extracts the arithmetic expression a question asks for, such as
// "2+4*12" from "What is 2+4*12?". It reports false unless the remaining text
// is nothing but numbers, operators and a few numeric functions.
func Expression(text string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	for _, lead := range exprLeadIns {
		if rest, ok := strings.CutPrefix(s, lead); ok {
			s = rest
			break
		}
	}
	s = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), "?=. "))
	if s == "" || !exprCharsRe.MatchString(s) || !binaryOpRe.MatchString(s) {
		return "", false
	}
	for _, w := range wordRe.FindAllString(s, -1) {
		if !exprFuncs[w] {
			return "", false
		}
	}
	return s, true
}
