package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfflineAdapterSuccess(t *testing.T) {
	a := NewOfflineAdapter("mock-1", "v1", AlwaysRespond(`{"action":"call"}`))
	resp, err := a.Query(context.Background(), []Message{{Role: RoleUser, Content: "your move"}}, 100)
	require.NoError(t, err)
	assert.Equal(t, `{"action":"call"}`, resp.RawText)
	assert.Equal(t, "mock-1", a.ModelID())
	assert.Equal(t, 0, resp.InputTokens)
}

func TestOfflineAdapterEmptyIsFailure(t *testing.T) {
	a := NewOfflineAdapter("mock-1", "v1", AlwaysRespond(""))
	resp, err := a.Query(context.Background(), nil, 100)
	require.Error(t, err)
	require.Nil(t, resp)

	var adapterErr *Error
	require.True(t, errors.As(err, &adapterErr))
}

func TestOfflineAdapterTruncatesToTokenBudget(t *testing.T) {
	long := ""
	for i := 0; i < 1000; i++ {
		long += "x"
	}
	a := NewOfflineAdapter("mock-1", "v1", AlwaysRespond(long))
	resp, err := a.Query(context.Background(), nil, 10) // 10 tokens -> 40 chars
	require.NoError(t, err)
	assert.Len(t, resp.RawText, 40)
}

// P6: no externally-raised exception type ever propagates out of Query —
// every failure path returns *adapter.Error.
func TestOfflineAdapterUniformFailureOnTimeout(t *testing.T) {
	a := NewOfflineAdapter("mock-1", "v1", Sleep(50*time.Millisecond, AlwaysRespond("too late")))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := a.Query(ctx, nil, 100)
	require.Error(t, err)

	var adapterErr *Error
	require.True(t, errors.As(err, &adapterErr))
	assert.Equal(t, FailureTimeout, adapterErr.Kind)
}

func TestOfflineAdapterUniformFailureOnStrategyError(t *testing.T) {
	boom := errors.New("boom")
	a := NewOfflineAdapter("mock-1", "v1", func(ctx context.Context, messages []Message) (string, error) {
		return "", boom
	})

	_, err := a.Query(context.Background(), nil, 100)
	require.Error(t, err)

	var adapterErr *Error
	require.True(t, errors.As(err, &adapterErr))
	assert.Equal(t, FailureAPIError, adapterErr.Kind)
}

func TestNoopRateLimiterNeverBlocks(t *testing.T) {
	var l RateLimiter = NoopRateLimiter{}
	err := l.Wait(context.Background(), "any-agent")
	require.NoError(t, err)
}
