package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// rateLimitDelay is the fixed sleep-then-retry-once delay for rate_limit
// failures. Spec fixes this at a constant 5s — adapters are a single-retry
// contract, not a backoff library.
const rateLimitDelay = 5 * time.Second

// RateLimiter lets several concurrently-running matches that share one
// OpenAI-compatible agent coordinate so the adapter's single-retry
// contract isn't swamped by the tournament's own concurrency. A nil
// RateLimiter (the default) makes Wait a no-op.
type RateLimiter interface {
	Wait(ctx context.Context, agentID string) error
}

// OpenAICompatibleAdapter talks to any OpenAI chat-completions-compatible
// back-end.
type OpenAICompatibleAdapter struct {
	client  *openai.Client
	model   string
	limiter RateLimiter
}

// headerInjectingTransport adds fixed headers to every outbound request —
// used by the routed (OpenRouter-style) adapter for attribution headers.
type headerInjectingTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			clone.Header.Set(k, v)
		}
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// OpenAIConfig configures an OpenAI-compatible adapter.
type OpenAIConfig struct {
	APIKeyEnv      string
	Model          string
	BaseURL        string // optional override, e.g. a self-hosted endpoint
	DefaultHeaders map[string]string
	Limiter        RateLimiter
}

// NewOpenAICompatibleAdapter constructs an adapter from cfg. Construction
// fails fast with *ErrMissingCredential when the configured environment
// variable is unset, per the adapter contract in spec §6.2.
func NewOpenAICompatibleAdapter(cfg OpenAIConfig) (*OpenAICompatibleAdapter, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, &ErrMissingCredential{EnvVar: cfg.APIKeyEnv}
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if len(cfg.DefaultHeaders) > 0 {
		clientCfg.HTTPClient = &http.Client{
			Transport: &headerInjectingTransport{headers: cfg.DefaultHeaders},
		}
	}

	return &OpenAICompatibleAdapter{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		limiter: cfg.Limiter,
	}, nil
}

// ModelID returns the configured model identifier.
func (a *OpenAICompatibleAdapter) ModelID() string { return a.model }

// Query issues one chat-completion request, with an internal
// sleep-then-retry-once on a rate-limit response. Every other failure maps
// straight to its FailureKind.
func (a *OpenAICompatibleAdapter) Query(ctx context.Context, messages []Message, maxTokens int) (*Response, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx, a.model); err != nil {
			return nil, &Error{Kind: FailureRateLimit, Message: "rate limiter wait failed", Cause: err}
		}
	}

	req := buildChatRequest(a.model, messages, maxTokens)

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if isRateLimitErr(err) {
			select {
			case <-time.After(rateLimitDelay):
			case <-ctx.Done():
				return nil, classifyOpenAIErr(ctx.Err())
			}
			resp, err = a.client.CreateChatCompletion(ctx, req)
			if err != nil {
				return nil, classifyOpenAIErr(err)
			}
		} else {
			return nil, classifyOpenAIErr(err)
		}
	}
	latency := time.Since(start)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &Error{Kind: FailureTimeout, Message: "empty completion", Cause: ErrEmptyResponse}
	}

	choice := resp.Choices[0]
	return &Response{
		RawText:       choice.Message.Content,
		ReasoningText: choice.Message.ReasoningContent,
		InputTokens:   resp.Usage.PromptTokens,
		OutputTokens:  resp.Usage.CompletionTokens,
		LatencyMS:     latency.Milliseconds(),
		ModelID:       a.model,
		ModelVersion:  resp.Model,
	}, nil
}

func buildChatRequest(model string, messages []Message, maxTokens int) openai.ChatCompletionRequest {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:     model,
		Messages:  out,
		MaxTokens: maxTokens,
	}
}

func isRateLimitErr(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

func classifyOpenAIErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: FailureTimeout, Message: "request exceeded shot clock", Cause: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &Error{Kind: FailureRateLimit, Message: "rate limited", Cause: err}
		}
		if apiErr.HTTPStatusCode == http.StatusRequestTimeout || apiErr.HTTPStatusCode == http.StatusGatewayTimeout {
			return &Error{Kind: FailureTimeout, Message: "back-end timed out", Cause: err}
		}
		return &Error{Kind: FailureAPIError, Message: fmt.Sprintf("back-end error (status %d)", apiErr.HTTPStatusCode), Cause: err}
	}

	return &Error{Kind: FailureAPIError, Message: "back-end error", Cause: err}
}
