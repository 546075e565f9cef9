package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pario-ai/benchrun/pkg/models"
)

// WikipediaName is the name of the wikipedia tool.
const WikipediaName = "wikipedia"

const maxExtract = 8000

// Asker answers a free-form prompt. *LLM implements it.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Wikipedia finds the article best matching a question and answers from
// its summary.
type Wikipedia struct {
	baseURL string
	asker   Asker
	client  *http.Client
}

// NewWikipedia creates the wikipedia tool. If asker is nil the article
// summary itself is returned.
func NewWikipedia(baseURL string, asker Asker) *Wikipedia {
	return &Wikipedia{
		baseURL: strings.TrimRight(baseURL, "/"),
		asker:   asker,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Wikipedia) Name() string { return WikipediaName }

func (w *Wikipedia) Invoke(ctx context.Context, q models.Question) (string, error) {
	title, err := w.search(ctx, q.Text)
	if err != nil {
		return "", w.fail(err)
	}
	extract, err := w.summary(ctx, title)
	if err != nil {
		return "", w.fail(err)
	}
	extract = clip(extract, maxExtract)
	if w.asker == nil {
		return extract, nil
	}

	prompt := fmt.Sprintf("Wikipedia article %q:\n\n%s\n\nUsing the article, answer: %s", title, extract, q.Text)
	answer, err := w.asker.Ask(ctx, prompt)
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (w *Wikipedia) search(ctx context.Context, query string) (string, error) {
	v := url.Values{}
	v.Set("action", "query")
	v.Set("list", "search")
	v.Set("format", "json")
	v.Set("srlimit", "1")
	v.Set("srsearch", query)

	var out struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := w.getJSON(ctx, w.baseURL+"/w/api.php?"+v.Encode(), &out); err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	if len(out.Query.Search) == 0 {
		return "", fmt.Errorf("no article matches %q", query)
	}
	return out.Query.Search[0].Title, nil
}

func (w *Wikipedia) summary(ctx context.Context, title string) (string, error) {
	var out struct {
		Title   string `json:"title"`
		Extract string `json:"extract"`
	}
	path := "/api/rest_v1/page/summary/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	if err := w.getJSON(ctx, w.baseURL+path, &out); err != nil {
		return "", fmt.Errorf("summary %q: %w", title, err)
	}
	if out.Extract == "" {
		return "", fmt.Errorf("article %q has no summary", title)
	}
	return out.Extract, nil
}

func (w *Wikipedia) getJSON(ctx context.Context, target string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "benchrun/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (w *Wikipedia) fail(err error) error {
	return &models.ToolError{Kind: models.KindInvocationError, Tool: WikipediaName, Message: err.Error(), Err: err}
}
