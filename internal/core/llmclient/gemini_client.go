package llmclient

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

// GeminiClient is the bearer-token provider variant (spec.md §4.1),
// grounded on the teacher's generative_ai/service.go AIClient wiring.
// CompleteStructured requests a JSON response MIME type but sends no
// response schema: the schema reaches the model only inside the prompt.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *slog.Logger
	retry  RetryConfig
}

// NewGeminiClient builds a client backed by the Gemini API. apiKey must be
// non-empty; callers are expected to resolve it from config before calling.
func NewGeminiClient(ctx context.Context, apiKey, model string, logger *slog.Logger, retry RetryConfig) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llmclient: gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llmclient: failed to create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiClient{client: client, model: model, logger: logger, retry: retry}, nil
}

var _ Client = (*GeminiClient)(nil)

func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := otel.Tracer("LLMClient").Start(ctx, "GeminiClient.Complete", trace.WithAttributes(
		attribute.Int("prompt.length", len(prompt)),
		attribute.String("model", g.model),
	))
	defer span.End()

	text, err := withRetry(ctx, g.logger, g.retry, func(ctx context.Context) (string, error) {
		result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err != nil {
			return "", classifyGeminiErr(err)
		}
		txt := result.Text()
		if txt == "" {
			return "", &LLMError{Kind: ErrBadResponse, Err: fmt.Errorf("empty response")}
		}
		return txt, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}
	span.SetStatus(codes.Ok, "completion succeeded")
	return text, nil
}

func (g *GeminiClient) Stream(ctx context.Context, prompt string) (iter.Seq2[string, error], error) {
	ctx, span := otel.Tracer("LLMClient").Start(ctx, "GeminiClient.Stream", trace.WithAttributes(
		attribute.Int("prompt.length", len(prompt)),
		attribute.String("model", g.model),
	))
	defer span.End()

	inner := g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), nil)
	span.SetStatus(codes.Ok, "stream initiated")

	return func(yield func(string, error) bool) {
		for resp, err := range inner {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}, nil
}

func (g *GeminiClient) CompleteStructured(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	ctx, span := otel.Tracer("LLMClient").Start(ctx, "GeminiClient.CompleteStructured", trace.WithAttributes(
		attribute.Int("prompt.length", len(prompt)),
		attribute.String("model", g.model),
	))
	defer span.End()

	strictSchema := EnforceNoAdditionalProperties(schema)

	raw, err := withRetry(ctx, g.logger, g.retry, func(ctx context.Context) (string, error) {
		cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
		result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(jsonSchemaPrompt(prompt, strictSchema)), cfg)
		if err != nil {
			return "", classifyGeminiErr(err)
		}
		txt := result.Text()
		if _, err := parseStructured(txt); err != nil {
			return "", err
		}
		return txt, nil
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

// embeddingModel is fixed rather than configurable: it must match the
// dimensionality of the vector index's column (vectorindex.pg_index.go).
const embeddingModel = "text-embedding-004"

// Embed satisfies vectorindex.Embedder, letting the POI Orchestrator reuse
// the same client it already holds for completion calls rather than
// standing up a second provider just for embeddings.
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("LLMClient").Start(ctx, "GeminiClient.Embed", trace.WithAttributes(
		attribute.Int("text.length", len(text)),
	))
	defer span.End()

	var vec []float32
	_, err := withRetry(ctx, g.logger, g.retry, func(ctx context.Context) (string, error) {
		result, err := g.client.Models.EmbedContent(ctx, embeddingModel, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
		if err != nil {
			return "", classifyGeminiErr(err)
		}
		if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
			return "", &LLMError{Kind: ErrBadResponse, Err: fmt.Errorf("empty embedding")}
		}
		vec = result.Embeddings[0].Values
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

func classifyGeminiErr(err error) error {
	// The genai SDK does not expose a typed status error in the pack's
	// vendored surface, so upstream failures are folded into Upstream5xx —
	// conservative, since spec.md mandates always retrying 503s and the SDK
	// already retries transport-level issues internally.
	return &LLMError{Kind: ErrUpstream5xx, Err: err}
}

func jsonSchemaPrompt(prompt string, schema map[string]any) string {
	return fmt.Sprintf("%s\n\nRespond with a single JSON object matching this schema, no prose, no markdown fence:\n%v", prompt, schema)
}

