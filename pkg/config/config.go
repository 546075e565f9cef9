package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all benchrun configuration.
type Config struct {
	Pipeline  PipelineConfig   `yaml:"pipeline"`
	Cache     CacheConfig      `yaml:"cache"`
	History   HistoryConfig    `yaml:"history"`
	Scoring   ScoringConfig    `yaml:"scoring"`
	Providers []ProviderConfig `yaml:"providers"`
	Router    RouterConfig     `yaml:"router"`
	Tools     ToolsConfig      `yaml:"tools"`
}

// PipelineConfig controls batching and concurrency.
type PipelineConfig struct {
	Workers     int           `yaml:"workers"`
	BatchSize   int           `yaml:"batch_size"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// Cache backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// CacheConfig controls the answer cache.
// RetryErrors makes cached error records count as misses so they are recomputed.
type CacheConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	RetryErrors bool   `yaml:"retry_errors"`
}

// HistoryConfig controls the invocation history log.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// ScoringConfig points at the benchmark scoring API.
type ScoringConfig struct {
	URL       string `yaml:"url"`
	Username  string `yaml:"username"`
	AgentCode string `yaml:"agent_code"`
}

// ProviderConfig defines an upstream LLM provider.
// Type is "openai" (default) or "anthropic".
type ProviderConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Type   string `yaml:"type"`
	Model  string `yaml:"model"`
}

// RouterConfig maps question categories to ordered tool chains.
type RouterConfig struct {
	Routes []RouteConfig `yaml:"routes"`
}

// RouteConfig lists the tools tried, in order, for one category.
type RouteConfig struct {
	Category string   `yaml:"category"`
	Tools    []string `yaml:"tools"`
}

// ToolsConfig holds per-tool settings.
type ToolsConfig struct {
	Wikipedia WikipediaConfig `yaml:"wikipedia"`
	File      FileConfig      `yaml:"file"`
	Search    SearchConfig    `yaml:"search"`
}

// WikipediaConfig configures the wikipedia lookup tool.
type WikipediaConfig struct {
	URL string `yaml:"url"`
}

// FileConfig configures the attachment tool.
type FileConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// Search provider types.
const (
	SearchGoogle     = "google"
	SearchDuckDuckGo = "duckduckgo"
)

// SearchConfig configures the web search tool. Providers are tried in order;
// a google provider without an API key and engine ID is skipped.
type SearchConfig struct {
	Providers  []SearchProviderConfig `yaml:"providers"`
	MaxResults int                    `yaml:"max_results"`
}

// SearchProviderConfig defines one web search backend.
type SearchProviderConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	URL      string `yaml:"url"`
	APIKey   string `yaml:"api_key"`
	EngineID string `yaml:"engine_id"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Workers:     4,
			BatchSize:   5,
			TaskTimeout: 2 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: BackendSQLite,
			Path:    "benchrun-cache.db",
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  "benchrun.db",
		},
		Scoring: ScoringConfig{
			URL: "https://agents-course-unit4-scoring.hf.space",
		},
		Router: RouterConfig{
			Routes: []RouteConfig{
				{Category: "default", Tools: []string{"llm"}},
				{Category: "reversed", Tools: []string{"text", "llm"}},
				{Category: "file", Tools: []string{"file", "llm"}},
				{Category: "lookup", Tools: []string{"wikipedia", "llm"}},
				{Category: "math", Tools: []string{"math", "llm"}},
				{Category: "search", Tools: []string{"search", "llm"}},
			},
		},
		Tools: ToolsConfig{
			Wikipedia: WikipediaConfig{URL: "https://en.wikipedia.org"},
			File:      FileConfig{MaxBytes: 1 << 20},
			Search: SearchConfig{
				Providers: []SearchProviderConfig{
					{Name: "google", Type: SearchGoogle, URL: "https://www.googleapis.com"},
					{Name: "duckduckgo", Type: SearchDuckDuckGo, URL: "https://html.duckduckgo.com"},
				},
				MaxResults: 3,
			},
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize))
	}
	if c.Pipeline.TaskTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.task_timeout must be positive, got %s", c.Pipeline.TaskTimeout))
	}
	switch c.Cache.Backend {
	case BackendSQLite, BackendBolt, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of sqlite, bolt, memory", c.Cache.Backend))
	}
	for _, p := range c.Providers {
		if p.Type != "" && p.Type != "openai" && p.Type != "anthropic" {
			errs = append(errs, fmt.Errorf("provider %q: unknown type %q", p.Name, p.Type))
		}
	}
	for _, p := range c.Tools.Search.Providers {
		if p.Type != SearchGoogle && p.Type != SearchDuckDuckGo {
			errs = append(errs, fmt.Errorf("search provider %q: unknown type %q", p.Name, p.Type))
		}
	}
	return errors.Join(errs...)
}
