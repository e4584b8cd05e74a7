// Package adapter provides a uniform façade over heterogeneous model
// back-ends. Every adapter maps its back-end's failures into one error
// kind so the match loop never branches on back-end-specific conditions.
package adapter

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies the speaker of a Message in a query.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation sent to a back-end.
type Message struct {
	Role    Role
	Content string
}

// Response is the immutable result of a successful adapter Query.
//
// A successful Response never has empty RawText — an empty completion is
// itself a failure (ErrEmptyResponse), not a successful Response.
type Response struct {
	RawText       string
	ReasoningText string
	InputTokens   int
	OutputTokens  int
	LatencyMS     int64
	ModelID       string
	ModelVersion  string
}

// FailureKind is the uniform classification every back-end error maps to.
type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureRateLimit FailureKind = "rate_limit"
	FailureAPIError  FailureKind = "api_error"
)

// Error is the single error type every adapter ever returns from Query. No
// back-end-specific exception type ever escapes the adapter boundary.
type Error struct {
	Kind    FailureKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("adapter %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("adapter %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, adapter.ErrRateLimit) style sentinel matching
// against kind, independent of the wrapped cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinel errors used with errors.Is for kind-only comparisons.
var (
	ErrTimeout   = &Error{Kind: FailureTimeout}
	ErrRateLimit = &Error{Kind: FailureRateLimit}
	ErrAPIError  = &Error{Kind: FailureAPIError}
)

// ErrEmptyResponse indicates a back-end returned a technically successful
// call with no text content. The match loop classifies this as its own
// violation kind (EMPTY_RESPONSE) distinct from a timeout, even though
// both originate from this adapter layer's failure boundary.
var ErrEmptyResponse = errors.New("adapter: empty response")

// ErrMissingCredential is a configuration error raised at construction time
// when a required credential environment variable is unset.
type ErrMissingCredential struct {
	EnvVar string
}

func (e *ErrMissingCredential) Error() string {
	return fmt.Sprintf("adapter: required credential env var %q is not set", e.EnvVar)
}

// Adapter is the uniform interface every model back-end implements.
type Adapter interface {
	// Query sends messages to the back-end and returns its response. All
	// back-end failures are mapped to *Error; Query never returns a
	// back-end-specific error type, and never returns a successful
	// Response with empty RawText.
	Query(ctx context.Context, messages []Message, maxTokens int) (*Response, error)

	// ModelID is the canonical model identifier used for aggregated stats.
	ModelID() string
}
