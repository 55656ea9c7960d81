package llmclient

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestErrorKindRetryable(t *testing.T) {
	assert.True(t, ErrUpstream5xx.Retryable())
	assert.True(t, ErrSchemaViolation.Retryable())
	assert.False(t, ErrTimeout.Retryable())
	assert.False(t, ErrBadResponse.Retryable())
	assert.False(t, ErrCancelled.Retryable())
}

func TestBackoff_ExponentialUntilCap(t *testing.T) {
	assert.Equal(t, time.Second, backoff(0))
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, 30*time.Second, backoff(10)) // would be 1024s uncapped
}

func TestStripJSONFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripJSONFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripJSONFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripJSONFence(`{"a":1}`))
}

func TestParseStructured_ValidJSON(t *testing.T) {
	got, err := parseStructured(`{"keywords": ["a", "b"]}`)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got["keywords"])
}

func TestParseStructured_FencedJSON(t *testing.T) {
	got, err := parseStructured("```json\n{\"ok\": true}\n```")
	require.NoError(t, err)
	assert.Equal(t, true, got["ok"])
}

func TestParseStructured_MalformedJSONIsSchemaViolation(t *testing.T) {
	_, err := parseStructured("not json")
	require.Error(t, err)
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrSchemaViolation, llmErr.Kind)
}

func TestWithRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	result, err := withRetry(context.Background(), testLogger(), RetryConfig{MaxRetries: 3, Timeout: time.Second},
		func(ctx context.Context) (string, error) {
			calls++
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetriesRetryableErrorsThenSucceeds(t *testing.T) {
	calls := 0
	result, err := withRetry(context.Background(), testLogger(), RetryConfig{MaxRetries: 3, Timeout: time.Second},
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", &LLMError{Kind: ErrUpstream5xx, Err: errors.New("upstream down")}
			}
			return "recovered", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_NonRetryableErrorFailsImmediately(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), testLogger(), RetryConfig{MaxRetries: 3, Timeout: time.Second},
		func(ctx context.Context) (string, error) {
			calls++
			return "", &LLMError{Kind: ErrBadResponse, Err: errors.New("bad")}
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), testLogger(), RetryConfig{MaxRetries: 2, Timeout: time.Second},
		func(ctx context.Context) (string, error) {
			calls++
			return "", &LLMError{Kind: ErrUpstream5xx, Err: errors.New("still down")}
		})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrUpstream5xx, llmErr.Kind)
}

func TestWithRetry_CancelledContextAbortsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := withRetry(ctx, testLogger(), RetryConfig{MaxRetries: 3, Timeout: time.Second},
		func(ctx context.Context) (string, error) {
			calls++
			return "", &LLMError{Kind: ErrUpstream5xx, Err: errors.New("down")}
		})
	require.Error(t, err)
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCancelled, llmErr.Kind)
}
