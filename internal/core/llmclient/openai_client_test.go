package llmclient

import (
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyOpenAIErr_ServerAPIErrorIsRetryable(t *testing.T) {
	err := classifyOpenAIErr(&openai.APIError{HTTPStatusCode: 503, Message: "overloaded"})
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrUpstream5xx, llmErr.Kind)
	assert.True(t, llmErr.Kind.Retryable())
}

func TestClassifyOpenAIErr_ClientAPIErrorIsNotRetryable(t *testing.T) {
	err := classifyOpenAIErr(&openai.APIError{HTTPStatusCode: 400, Message: "bad request"})
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrBadResponse, llmErr.Kind)
	assert.False(t, llmErr.Kind.Retryable())
}

// spec.md:58 requires retrying connection errors too; go-openai doesn't
// always wrap transport failures as *openai.APIError, so these must still
// be classified as retryable rather than falling through to bad_response.
func TestClassifyOpenAIErr_TransportErrorIsRetryable(t *testing.T) {
	err := classifyOpenAIErr(errors.New("dial tcp: connection refused"))
	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrUpstream5xx, llmErr.Kind)
	assert.True(t, llmErr.Kind.Retryable())
}
