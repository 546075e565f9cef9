package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pario-ai/benchrun/pkg/config"
	"github.com/pario-ai/benchrun/pkg/models"
)

// LLMName is the name of the language model tool.
const LLMName = "llm"

const anthropicVersion = "2023-06-01"

const systemPrompt = `You answer benchmark questions. Reply with the minimal final answer only, in the form [ANSWER] your_answer.
Use digits for numbers. Do not explain. If you cannot find the answer reply [ANSWER] unknown.
If the question is written backwards, read it reversed before answering.`

// LLM asks chat-completion providers, trying each in order until one answers.
type LLM struct {
	providers []config.ProviderConfig
	client    *http.Client
	logger    *slog.Logger
}

// NewLLM creates the LLM tool. With no providers every call fails with
// tool_unavailable.
func NewLLM(providers []config.ProviderConfig, logger *slog.Logger) *LLM {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{
		providers: providers,
		client:    &http.Client{Timeout: 90 * time.Second},
		logger:    logger,
	}
}

func (l *LLM) Name() string { return LLMName }

func (l *LLM) Invoke(ctx context.Context, q models.Question) (string, error) {
	return l.Ask(ctx, q.Text)
}

// Ask sends prompt to the providers and returns the cleaned answer.
func (l *LLM) Ask(ctx context.Context, prompt string) (string, error) {
	if len(l.providers) == 0 {
		return "", &models.ToolError{Kind: models.KindToolUnavailable, Tool: LLMName, Message: "no providers configured"}
	}

	var lastErr error
	for _, p := range l.providers {
		var (
			text string
			err  error
		)
		switch p.Type {
		case "anthropic":
			text, err = l.askAnthropic(ctx, p, prompt)
		default:
			text, err = l.askOpenAI(ctx, p, prompt)
		}
		if err == nil {
			return CleanAnswer(text), nil
		}
		lastErr = err

		var se *statusErr
		if ctx.Err() != nil || (errors.As(err, &se) && !isRetryable(se.code)) {
			break
		}
		l.logger.Warn("upstream failed, trying next", "provider", p.Name, "error", err)
	}

	kind := models.KindInvocationError
	if errors.Is(lastErr, context.DeadlineExceeded) {
		kind = models.KindTimeout
	}
	return "", &models.ToolError{Kind: kind, Tool: LLMName, Message: lastErr.Error(), Err: lastErr}
}

func (l *LLM) askOpenAI(ctx context.Context, p config.ProviderConfig, prompt string) (string, error) {
	body, err := json.Marshal(openAIRequest{
		Model: p.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	headers := map[string]string{"Authorization": "Bearer " + p.APIKey}

	res, err := l.doUpstreamRequest(ctx, p.URL, "/v1/chat/completions", headers, body)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.Name, err)
	}

	var resp openAIResponse
	if err := json.Unmarshal(res, &resp); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", p.Name, err)
	}
	if resp.Usage != nil {
		l.logger.Debug("llm usage", "provider", p.Name, "prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: response has no choices", p.Name)
	}
	return resp.Choices[0].Message.Content, nil
}

func (l *LLM) askAnthropic(ctx context.Context, p config.ProviderConfig, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     p.Model,
		System:    systemPrompt,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: 1024,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	headers := map[string]string{
		"x-api-key":         p.APIKey,
		"anthropic-version": anthropicVersion,
	}

	res, err := l.doUpstreamRequest(ctx, p.URL, "/v1/messages", headers, body)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.Name, err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(res, &resp); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", p.Name, err)
	}
	if resp.Usage != nil {
		l.logger.Debug("llm usage", "provider", p.Name, "prompt_tokens", resp.Usage.InputTokens, "completion_tokens", resp.Usage.OutputTokens)
	}
	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%s: response has no text content", p.Name)
	}
	return sb.String(), nil
}

type statusErr struct {
	code int
	body string
}

func (e *statusErr) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.code, e.body)
}

// doUpstreamRequest posts a JSON body to a provider and returns the 200 body.
func (l *LLM) doUpstreamRequest(ctx context.Context, providerURL, path string, headers map[string]string, body []byte) ([]byte, error) {
	target, err := url.Parse(providerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid provider URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(target.String(), "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &statusErr{code: resp.StatusCode, body: msg}
	}
	return respBody, nil
}

// isRetryable returns true if the status code warrants trying the next provider.
// Transport errors are always retried.
func isRetryable(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}

// CleanAnswer strips answer tags and surrounding whitespace.
func CleanAnswer(s string) string {
	s = strings.ReplaceAll(s, "[/ANSWER]", "")
	if i := strings.LastIndex(s, "[ANSWER]"); i >= 0 {
		s = s[i+len("[ANSWER]"):]
	}
	return strings.TrimSpace(s)
}
