package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/expr-lang/expr"

	"github.com/pario-ai/benchrun/pkg/models"
	"github.com/pario-ai/benchrun/pkg/router"
)

// MathName is the name of the arithmetic tool.
const MathName = "math"

// Math evaluates the arithmetic expression a question asks for.
type Math struct{}

// NewMath creates the math tool.
func NewMath() *Math { return &Math{} }

func (m *Math) Name() string { return MathName }

func (m *Math) Invoke(_ context.Context, q models.Question) (string, error) {
	src, ok := router.Expression(q.Text)
	if !ok {
		return "", &models.ToolError{Kind: models.KindInvocationError, Tool: MathName, Message: "no arithmetic expression in question"}
	}
	out, err := Evaluate(src)
	if err != nil {
		return "", &models.ToolError{Kind: models.KindInvocationError, Tool: MathName, Message: err.Error(), Err: err}
	}
	return out, nil
}

// Evaluate computes a numeric expression. Whole results are printed without
// a fractional part.
func Evaluate(src string) (string, error) {
	program, err := expr.Compile(src)
	if err != nil {
		return "", fmt.Errorf("compile %q: %w", src, err)
	}
	v, err := expr.Run(program, nil)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", src, err)
	}

	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return "", fmt.Errorf("evaluate %q: result is not a finite number", src)
		}
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return strconv.FormatInt(int64(n), 10), nil
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("evaluate %q: result %v is not a number", src, v)
	}
}
