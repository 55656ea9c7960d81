package llmclient

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIClient is the no-auth provider variant (spec.md §4.1), targeting
// an OpenAI-compatible local server (vLLM/TGI-shaped).
// Grounded on monlai-dev-vivu's go.mod, the only pack repo with an
// OpenAI-shaped SDK.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
	retry  RetryConfig
}

// NewOpenAIClient builds a client against baseURL. No bearer token is
// required. Requests carry no guided-decoding field (such as vLLM's
// "guided_json"); structured output relies on the prompt alone.
func NewOpenAIClient(baseURL, model string, logger *slog.Logger, retry RetryConfig) *OpenAIClient {
	cfg := openai.DefaultConfig("")
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "local-model"
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model, logger: logger, retry: retry}
}

var _ Client = (*OpenAIClient)(nil)

const defaultOpenAIEmbedModel = "text-embedding-3-small"

// Embed satisfies vectorindex.Embedder for the local/no-auth provider
// variant, using the OpenAI-compatible embeddings endpoint.
func (o *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("LLMClient").Start(ctx, "OpenAIClient.Embed", trace.WithAttributes(
		attribute.Int("text.length", len(text)),
	))
	defer span.End()

	var vec []float32
	_, err := withRetry(ctx, o.logger, o.retry, func(ctx context.Context) (string, error) {
		resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(defaultOpenAIEmbedModel),
		})
		if err != nil {
			return "", classifyOpenAIErr(err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return "", &LLMError{Kind: ErrBadResponse, Err: fmt.Errorf("empty embedding")}
		}
		vec = resp.Data[0].Embedding
		return "", nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, err
	}
	span.SetStatus(codes.Ok, "embedding succeeded")
	return vec, nil
}

func (o *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := otel.Tracer("LLMClient").Start(ctx, "OpenAIClient.Complete", trace.WithAttributes(
		attribute.Int("prompt.length", len(prompt)),
		attribute.String("model", o.model),
	))
	defer span.End()

	text, err := withRetry(ctx, o.logger, o.retry, func(ctx context.Context) (string, error) {
		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    o.model,
			Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		})
		if err != nil {
			return "", classifyOpenAIErr(err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return "", &LLMError{Kind: ErrBadResponse, Err: fmt.Errorf("empty response")}
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}
	span.SetStatus(codes.Ok, "completion succeeded")
	return text, nil
}

func (o *OpenAIClient) Stream(ctx context.Context, prompt string) (iter.Seq2[string, error], error) {
	ctx, span := otel.Tracer("LLMClient").Start(ctx, "OpenAIClient.Stream", trace.WithAttributes(
		attribute.Int("prompt.length", len(prompt)),
		attribute.String("model", o.model),
	))
	defer span.End()

	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start stream")
		return nil, classifyOpenAIErr(err)
	}
	span.SetStatus(codes.Ok, "stream initiated")

	return func(yield func(string, error) bool) {
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if err != nil {
				if err.Error() == "EOF" {
					return
				}
				yield("", err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if !yield(resp.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}, nil
}

func (o *OpenAIClient) CompleteStructured(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	ctx, span := otel.Tracer("LLMClient").Start(ctx, "OpenAIClient.CompleteStructured", trace.WithAttributes(
		attribute.Int("prompt.length", len(prompt)),
		attribute.String("model", o.model),
	))
	defer span.End()

	// The schema, with additionalProperties forbidden on every object, is
	// sent only inside the prompt text. The request carries no JSON-schema
	// or guided-decoding field, so the server does not constrain decoding.
	strictSchema := EnforceNoAdditionalProperties(schema)

	raw, err := withRetry(ctx, o.logger, o.retry, func(ctx context.Context) (string, error) {
		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: o.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: jsonSchemaPrompt(prompt, strictSchema)},
			},
		})
		if err != nil {
			return "", classifyOpenAIErr(err)
		}
		if len(resp.Choices) == 0 {
			return "", &LLMError{Kind: ErrBadResponse, Err: fmt.Errorf("empty response")}
		}
		content := resp.Choices[0].Message.Content
		if _, err := parseStructured(content); err != nil {
			return "", err
		}
		return content, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "structured completion failed")
		return nil, err
	}

	parsed, err := parseStructured(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema violation")
		return nil, err
	}
	span.SetStatus(codes.Ok, "structured completion succeeded")
	return parsed, nil
}

// classifyOpenAIErr implements spec.md:58's retry policy ("Retry on HTTP
// 5xx, connection errors, and malformed JSON in complete_structured"). A
// typed *openai.APIError below 500 is a definite client-side failure
// (ErrBadResponse); anything else — a 5xx APIError, or a raw transport/
// connection error go-openai never wraps as *openai.APIError — is treated
// as retryable, mirroring classifyGeminiErr's conservative default.
func classifyOpenAIErr(err error) error {
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok && apiErr.HTTPStatusCode < 500 {
		return &LLMError{Kind: ErrBadResponse, Err: err}
	}
	return &LLMError{Kind: ErrUpstream5xx, Err: err}
}

func asAPIError(err error, target **openai.APIError) bool {
	apiErr, ok := err.(*openai.APIError)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}
