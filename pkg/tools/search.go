package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/pario-ai/benchrun/pkg/config"
	"github.com/pario-ai/benchrun/pkg/models"
)

// SearchName is the name of the web search tool.
const SearchName = "search"

var linkRe = regexp.MustCompile(`https?://[^\s"'<>]+`)

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string
	Snippet string
	Link    string
}

// Search answers questions from the web. A question that names a URL is
// answered from that page; otherwise the configured providers are searched
// in order and the hits, plus the text of the top page, go to the asker.
type Search struct {
	providers  []config.SearchProviderConfig
	maxResults int
	fetcher    *Fetcher
	asker      Asker
	client     *http.Client
	logger     *slog.Logger
}

// NewSearch creates the search tool. If asker is nil the gathered context is
// returned as the answer.
func NewSearch(cfg config.SearchConfig, asker Asker, logger *slog.Logger) *Search {
	if logger == nil {
		logger = slog.Default()
	}
	n := cfg.MaxResults
	if n <= 0 {
		n = 3
	}
	return &Search{
		providers:  cfg.Providers,
		maxResults: min(n, 10),
		fetcher:    NewFetcher(),
		asker:      asker,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (s *Search) Name() string { return SearchName }

func (s *Search) Invoke(ctx context.Context, q models.Question) (string, error) {
	if link := linkRe.FindString(q.Text); link != "" {
		link = strings.TrimRight(link, ".,;:?!)")
		page, err := s.fetcher.Fetch(ctx, link)
		if err != nil {
			return "", s.fail(err)
		}
		return s.answer(ctx, q, fmt.Sprintf("Content of %s:\n\n%s", link, page))
	}

	results, err := s.Search(ctx, q.Text)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "%s\n%s\nSource: %s\n\n", r.Title, r.Snippet, r.Link)
	}
	page, err := s.fetcher.Fetch(ctx, results[0].Link)
	if err != nil {
		s.logger.Debug("top result not fetched", "link", results[0].Link, "error", err)
	} else {
		fmt.Fprintf(&sb, "Text of %s:\n%s\n", results[0].Link, page)
	}
	return s.answer(ctx, q, sb.String())
}

// Search returns the hits of the first provider that has any. A google
// provider without credentials is skipped; any failure moves on to the next
// provider unless ctx is done.
func (s *Search) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var lastErr error
	for _, p := range s.providers {
		var (
			results []SearchResult
			err     error
		)
		switch p.Type {
		case config.SearchGoogle:
			if p.APIKey == "" || p.EngineID == "" {
				s.logger.Debug("search provider skipped, no credentials", "provider", p.Name)
				continue
			}
			results, err = s.google(ctx, p, query)
		default:
			results, err = s.duckDuckGo(ctx, p, query)
		}
		if err == nil && len(results) == 0 {
			err = errors.New("no results")
		}
		if err == nil {
			return results, nil
		}
		lastErr = fmt.Errorf("%s: %w", p.Name, err)

		if ctx.Err() != nil {
			break
		}
		s.logger.Warn("search provider failed, trying next", "provider", p.Name, "error", err)
	}

	if lastErr == nil {
		return nil, &models.ToolError{Kind: models.KindToolUnavailable, Tool: SearchName, Message: "no usable search providers"}
	}
	kind := models.KindInvocationError
	if errors.Is(lastErr, context.DeadlineExceeded) {
		kind = models.KindTimeout
	}
	return nil, &models.ToolError{Kind: kind, Tool: SearchName, Message: lastErr.Error(), Err: lastErr}
}

func (s *Search) google(ctx context.Context, p config.SearchProviderConfig, query string) ([]SearchResult, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("key", p.APIKey)
	v.Set("cx", p.EngineID)
	v.Set("num", strconv.Itoa(s.maxResults))

	body, err := s.get(ctx, strings.TrimRight(p.URL, "/")+"/customsearch/v1?"+v.Encode())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var out struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("api error: %s", out.Error.Message)
	}

	results := make([]SearchResult, 0, len(out.Items))
	for _, it := range out.Items {
		results = append(results, SearchResult{Title: it.Title, Snippet: it.Snippet, Link: it.Link})
	}
	return results, nil
}

// duckDuckGo scrapes the HTML results page, which needs no API key.
func (s *Search) duckDuckGo(ctx context.Context, p config.SearchProviderConfig, query string) ([]SearchResult, error) {
	body, err := s.get(ctx, strings.TrimRight(p.URL, "/")+"/html/?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := html.Parse(io.LimitReader(body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	var results []SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) > s.maxResults {
			return
		}
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				results = append(results, SearchResult{Title: nodeText(n), Link: duckDuckGoLink(attr(n, "href"))})
				return
			case hasClass(n, "result__snippet") && len(results) > 0:
				results[len(results)-1].Snippet = nodeText(n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}
	return results, nil
}

// duckDuckGoLink unwraps DuckDuckGo's redirect links to the target URL.
func duckDuckGoLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func (s *Search) get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

func (s *Search) answer(ctx context.Context, q models.Question, gathered string) (string, error) {
	if s.asker == nil {
		return gathered, nil
	}
	prompt := fmt.Sprintf("Web sources:\n\n%s\n\nUsing these sources, answer: %s", gathered, q.Text)
	return s.asker.Ask(ctx, prompt)
}

func (s *Search) fail(err error) error {
	kind := models.KindInvocationError
	if errors.Is(err, context.DeadlineExceeded) {
		kind = models.KindTimeout
	}
	return &models.ToolError{Kind: kind, Tool: SearchName, Message: err.Error(), Err: err}
}
