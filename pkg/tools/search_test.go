package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/benchrun/pkg/config"
	"github.com/pario-ai/benchrun/pkg/models"
)

const articlePage = `<html><head><title>Results</title><script>var x = "hidden";</script></head>
<body><nav>Home | About</nav><main><h1>1928 Summer Olympics</h1><p>Cuba sent 1 athlete.</p></main>
<footer>Copyright</footer></body></html>`

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/article" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articlePage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func duckDuckGoServer(t *testing.T, target string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/html/", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("q"))
		fmt.Fprintf(w, `<html><body><div class="results">
<div class="result"><h2><a class="result__a" href="//duckduckgo.com/l/?uddg=%s&amp;rut=x">1928 Olympics - Wiki</a></h2>
<a class="result__snippet" href="#">Athletes by country at the 1928 games.</a></div>
<div class="result"><h2><a class="result__a" href="https://example.org/other">Other</a></h2></div>
</div></body></html>`, url.QueryEscape(target))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch_FallsBackToDuckDuckGoWithoutKeys(t *testing.T) {
	page := pageServer(t)
	var ddgCalls, googleCalls atomic.Int32
	ddg := duckDuckGoServer(t, page.URL+"/article", &ddgCalls)
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		googleCalls.Add(1)
	}))
	defer google.Close()

	asker := &recordingAsker{answer: "CUB"}
	s := NewSearch(config.SearchConfig{Providers: []config.SearchProviderConfig{
		{Name: "google", Type: config.SearchGoogle, URL: google.URL},
		{Name: "ddg", Type: config.SearchDuckDuckGo, URL: ddg.URL},
	}}, asker, quietLogger())

	got, err := s.Invoke(context.Background(), models.Question{Text: "Which country had the fewest athletes at the 1928 Olympics?"})
	require.NoError(t, err)
	assert.Equal(t, "CUB", got)
	assert.Zero(t, googleCalls.Load(), "google without credentials is skipped")
	assert.Equal(t, int32(1), ddgCalls.Load())
	assert.Contains(t, asker.prompt, "Athletes by country at the 1928 games.")
	assert.Contains(t, asker.prompt, "Cuba sent 1 athlete.")
	assert.NotContains(t, asker.prompt, "hidden")
	assert.NotContains(t, asker.prompt, "Copyright")
}

func TestSearch_GoogleErrorFallsBack(t *testing.T) {
	page := pageServer(t)
	var ddgCalls atomic.Int32
	ddg := duckDuckGoServer(t, page.URL+"/article", &ddgCalls)
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusForbidden)
	}))
	defer google.Close()

	s := NewSearch(config.SearchConfig{Providers: []config.SearchProviderConfig{
		{Name: "google", Type: config.SearchGoogle, URL: google.URL, APIKey: "k", EngineID: "cx"},
		{Name: "ddg", Type: config.SearchDuckDuckGo, URL: ddg.URL},
	}}, nil, quietLogger())

	results, err := s.Search(context.Background(), "1928 olympics")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, page.URL+"/article", results[0].Link, "redirect link is unwrapped")
	assert.Equal(t, "Athletes by country at the 1928 games.", results[0].Snippet)
	assert.Equal(t, int32(1), ddgCalls.Load())
}

func TestSearch_GoogleResults(t *testing.T) {
	var ddgCalls atomic.Int32
	ddg := duckDuckGoServer(t, "https://example.org", &ddgCalls)
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customsearch/v1", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		assert.Equal(t, "cx", r.URL.Query().Get("cx"))
		assert.Equal(t, "2", r.URL.Query().Get("num"))
		_, _ = w.Write([]byte(`{"items":[{"title":"Dune","link":"https://example.org/dune","snippet":"Dune is a 1965 novel by Frank Herbert."}]}`))
	}))
	defer google.Close()

	s := NewSearch(config.SearchConfig{MaxResults: 2, Providers: []config.SearchProviderConfig{
		{Name: "google", Type: config.SearchGoogle, URL: google.URL, APIKey: "k", EngineID: "cx"},
		{Name: "ddg", Type: config.SearchDuckDuckGo, URL: ddg.URL},
	}}, nil, quietLogger())

	results, err := s.Search(context.Background(), "who wrote dune")
	require.NoError(t, err)
	assert.Equal(t, []SearchResult{{Title: "Dune", Snippet: "Dune is a 1965 novel by Frank Herbert.", Link: "https://example.org/dune"}}, results)
	assert.Zero(t, ddgCalls.Load())
}

func TestSearch_QuestionWithLinkReadsPage(t *testing.T) {
	page := pageServer(t)
	asker := &recordingAsker{answer: "1"}
	s := NewSearch(config.SearchConfig{}, asker, quietLogger())

	got, err := s.Invoke(context.Background(), models.Question{Text: "How many athletes did Cuba send, per " + page.URL + "/article?"})
	require.NoError(t, err)
	assert.Equal(t, "1", got)
	assert.Contains(t, asker.prompt, "Cuba sent 1 athlete.")
}

func TestSearch_Failures(t *testing.T) {
	s := NewSearch(config.SearchConfig{}, nil, quietLogger())
	_, err := s.Invoke(context.Background(), models.Question{Text: "anything"})
	var te *models.ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.KindToolUnavailable, te.Kind)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	s = NewSearch(config.SearchConfig{Providers: []config.SearchProviderConfig{
		{Name: "ddg", Type: config.SearchDuckDuckGo, URL: down.URL},
	}}, nil, quietLogger())
	_, err = s.Invoke(context.Background(), models.Question{Text: "anything"})
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.KindInvocationError, te.Kind)
	assert.Equal(t, SearchName, te.Tool)
	assert.Contains(t, te.Message, "503")
}

func TestClipKeepsRunesWhole(t *testing.T) {
	s := "añb" // ñ is two bytes
	assert.Equal(t, "a", clip(s, 2))
	assert.Equal(t, "añ", clip(s, 3))
	assert.Equal(t, s, clip(s, 10))

	long := ""
	for i := 0; i < 5000; i++ {
		long += "é"
	}
	assert.True(t, utf8.ValidString(clip(long, maxExtract-1)))
}
