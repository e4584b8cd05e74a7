package adapter

import (
	"context"
	"errors"
	"time"
)

// Strategy is a pure function producing raw model text from a message
// history. OfflineAdapter wraps one for deterministic testing and for
// mock tournament participants.
type Strategy func(ctx context.Context, messages []Message) (string, error)

// OfflineAdapter is the offline-deterministic back-end. It is used by
// every test in this repository and by any mock participant in a real
// run.
type OfflineAdapter struct {
	id       string
	version  string
	strategy Strategy
}

// NewOfflineAdapter builds an OfflineAdapter identified by id, calling
// strategy on every Query.
func NewOfflineAdapter(id, version string, strategy Strategy) *OfflineAdapter {
	return &OfflineAdapter{id: id, version: version, strategy: strategy}
}

// ModelID returns the adapter's configured identifier.
func (a *OfflineAdapter) ModelID() string { return a.id }

// Query runs the wrapped strategy, measuring its wall time as latency.
// Output is truncated to an approximate 4-characters-per-token budget;
// zero input tokens are accounted and output tokens are estimated by
// character count divided by four.
func (a *OfflineAdapter) Query(ctx context.Context, messages []Message, maxTokens int) (*Response, error) {
	start := time.Now()
	text, err := a.strategy(ctx, messages)
	latency := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, &Error{Kind: FailureTimeout, Message: "offline strategy exceeded shot clock", Cause: err}
		}
		return nil, &Error{Kind: FailureAPIError, Message: "offline strategy error", Cause: err}
	}

	maxChars := maxTokens * 4
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}

	if text == "" {
		return nil, &Error{Kind: FailureTimeout, Message: "empty completion from offline strategy", Cause: ErrEmptyResponse}
	}

	return &Response{
		RawText:      text,
		InputTokens:  0,
		OutputTokens: len(text) / 4,
		LatencyMS:    latency.Milliseconds(),
		ModelID:      a.id,
		ModelVersion: a.version,
	}, nil
}

// AlwaysRespond is a trivial Strategy factory returning a fixed string,
// handy for adversarial/garbage-output test scenarios (e.g. the literal
// string "THIS IS NOT JSON").
func AlwaysRespond(text string) Strategy {
	return func(ctx context.Context, messages []Message) (string, error) {
		return text, nil
	}
}

// Sleep is a Strategy factory that blocks for d, honoring ctx cancellation,
// used to exercise the shot clock in tests.
func Sleep(d time.Duration, then Strategy) Strategy {
	return func(ctx context.Context, messages []Message) (string, error) {
		select {
		case <-time.After(d):
			return then(ctx, messages)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
