package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pario-ai/benchrun/pkg/config"
	"github.com/pario-ai/benchrun/pkg/models"
)

// Question categories.
const (
	CategoryDefault  = "default"
	CategoryFile     = "file"
	CategoryReversed = "reversed"
	CategoryLookup   = "lookup"
	CategoryMath     = "math"
	CategorySearch   = "search"
)

var searchCues = []string{"http://", "https://", "www.", "website", "search the web", "online", "published", "according to"}

// ErrNoTools is returned when a question resolves to an empty tool chain.
var ErrNoTools = errors.New("no tools configured")

// Tool answers a question. A failing tool should return a *models.ToolError
// so the failure kind survives; other errors count as invocation errors.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, q models.Question) (string, error)
}

// Router resolves a question to an ordered chain of tools and tries them
// in turn until one answers.
type Router struct {
	routes map[string][]string
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

// New creates a Router from the route table and the available tools.
func New(cfg config.RouterConfig, tools []Tool, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		routes: make(map[string][]string, len(cfg.Routes)),
		tools:  make(map[string]Tool, len(tools)),
		logger: logger,
	}
	for _, route := range cfg.Routes {
		r.routes[route.Category] = route.Tools
	}
	for _, t := range tools {
		if _, dup := r.tools[t.Name()]; dup {
			continue
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Classify picks the category for a question.
func (r *Router) Classify(q models.Question) string {
	switch {
	case q.FileName != "":
		return CategoryFile
	case LooksReversed(q.Text):
		return CategoryReversed
	}
	if _, ok := Expression(q.Text); ok {
		return CategoryMath
	}
	lower := strings.ToLower(q.Text)
	if strings.Contains(lower, "wikipedia") {
		return CategoryLookup
	}
	for _, cue := range searchCues {
		if strings.Contains(lower, cue) {
			return CategorySearch
		}
	}
	return CategoryDefault
}

// Resolve returns the tools to try for a category, in order.
// An unconfigured category uses the default route; with no default route
// every registered tool is tried. Unknown tool names are skipped.
func (r *Router) Resolve(category string) ([]Tool, error) {
	names, ok := r.routes[category]
	if !ok {
		names, ok = r.routes[CategoryDefault]
	}
	if !ok {
		names = r.order
	}

	var chain []Tool
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		chain = append(chain, t)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("category %q: %w", category, ErrNoTools)
	}
	return chain, nil
}

// Route answers q with the first tool in its chain that succeeds.
// It returns the answer and the name of the tool that produced it.
func (r *Router) Route(ctx context.Context, q models.Question) (string, string, error) {
	category := r.Classify(q)
	chain, err := r.Resolve(category)
	if err != nil {
		return "", "", &models.ToolError{Kind: models.KindToolUnavailable, Message: err.Error(), Err: err}
	}

	var last *models.ToolError
	for _, t := range chain {
		answer, err := t.Invoke(ctx, q)
		if err == nil {
			return answer, t.Name(), nil
		}
		last = asToolError(t.Name(), err)
		if ctx.Err() != nil {
			return "", t.Name(), last
		}
		r.logger.Debug("tool failed, trying next",
			"question_id", q.ID, "category", category, "tool", t.Name(), "kind", last.Kind, "error", last.Message)
	}
	return "", last.Tool, last
}

func asToolError(tool string, err error) *models.ToolError {
	var te *models.ToolError
	if errors.As(err, &te) {
		if te.Tool == "" {
			te.Tool = tool
		}
		return te
	}
	kind := models.KindInvocationError
	if errors.Is(err, context.DeadlineExceeded) {
		kind = models.KindTimeout
	}
	return &models.ToolError{Kind: kind, Tool: tool, Message: err.Error(), Err: err}
}
