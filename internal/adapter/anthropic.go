package adapter

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures an Anthropic-style messages adapter.
type AnthropicConfig struct {
	APIKeyEnv string
	Model     string
	BaseURL   string // optional override
}

// AnthropicAdapter talks to Anthropic's messages API (or a compatible
// gateway). Mixed content blocks are folded: "thinking" blocks populate
// ReasoningText, "text" blocks concatenate into RawText.
type AnthropicAdapter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicAdapter constructs an adapter from cfg, failing fast on a
// missing credential.
func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, &ErrMissingCredential{EnvVar: cfg.APIKeyEnv}
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicAdapter{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// ModelID returns the configured model identifier.
func (a *AnthropicAdapter) ModelID() string { return a.model }

// Query issues one messages request and folds the response's content
// blocks per the adapter contract. Same shape as the OpenAI-compatible
// adapter's Query: an internal sleep-then-retry-once on a rate-limit
// response before giving up.
func (a *AnthropicAdapter) Query(ctx context.Context, messages []Message, maxTokens int) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages:  toAnthropicMessages(messages),
	}

	start := time.Now()
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		if isAnthropicRateLimitErr(err) {
			select {
			case <-time.After(rateLimitDelay):
			case <-ctx.Done():
				return nil, classifyAnthropicErr(ctx.Err())
			}
			msg, err = a.client.Messages.New(ctx, params)
			if err != nil {
				return nil, classifyAnthropicErr(err)
			}
		} else {
			return nil, classifyAnthropicErr(err)
		}
	}
	latency := time.Since(start)

	var rawText, reasoningText string
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			rawText += variant.Text
		case anthropic.ThinkingBlock:
			reasoningText += variant.Thinking
		}
	}

	if rawText == "" {
		return nil, &Error{Kind: FailureTimeout, Message: "empty completion", Cause: ErrEmptyResponse}
	}

	return &Response{
		RawText:       rawText,
		ReasoningText: reasoningText,
		InputTokens:   int(msg.Usage.InputTokens),
		OutputTokens:  int(msg.Usage.OutputTokens),
		LatencyMS:     latency.Milliseconds(),
		ModelID:       a.model,
		ModelVersion:  string(msg.Model),
	}, nil
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(block))
		default:
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func isAnthropicRateLimitErr(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func classifyAnthropicErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: FailureTimeout, Message: "request exceeded shot clock", Cause: err}
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return &Error{Kind: FailureRateLimit, Message: "rate limited", Cause: err}
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return &Error{Kind: FailureTimeout, Message: "back-end timed out", Cause: err}
		}
		return &Error{Kind: FailureAPIError, Message: "back-end error", Cause: err}
	}

	return &Error{Kind: FailureAPIError, Message: "back-end error", Cause: err}
}
