// Package poiorchestrator implements the POI discovery state machine from
// spec.md §4.6: keyword extraction feeding two parallel branches (web and
// vector search), each reranked independently, merged into a final POI set.
package poiorchestrator

import (
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/llmclient"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/placesvalidator"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/vectorindex"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/websearch"
)

// Config holds the tunables named in spec.md §6's configuration table.
type Config struct {
	WebWeight          float64
	EmbeddingWeight    float64
	RerankTopN         int
	KeywordK           int
	EmbeddingK         int
	WebSearchK         int
	FinalPoiCount      int
	ProcessConcurrency int
}

// DefaultConfig mirrors the defaults spec.md §6 lists.
func DefaultConfig() Config {
	return Config{
		WebWeight:          0.6,
		EmbeddingWeight:    0.4,
		RerankTopN:         10,
		KeywordK:           8,
		EmbeddingK:         10,
		WebSearchK:         10,
		FinalPoiCount:      15,
		ProcessConcurrency: 5,
	}
}

// Orchestrator wires the four C1-C4 collaborators behind the state machine.
type Orchestrator struct {
	llm          llmclient.Client
	web          websearch.Adapter
	vector       vectorindex.VectorIndex
	validator    placesvalidator.Validator
	cityResolver placesvalidator.CityResolver
	cfg          Config
	logger       *slog.Logger
}

func New(llm llmclient.Client, web websearch.Adapter, vector vectorindex.VectorIndex, validator placesvalidator.Validator, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{llm: llm, web: web, vector: vector, validator: validator, cfg: cfg, logger: logger}
}

// WithCityResolver attaches destination canonicalization (SUPPLEMENTED
// FEATURES in SPEC_FULL.md): when set, Run resolves the free-text
// destination before it is used as the vector index's city_filter or in
// places-API queries.
func (o *Orchestrator) WithCityResolver(r placesvalidator.CityResolver) *Orchestrator {
	o.cityResolver = r
	return o
}

func attrStrings(key string, vals []string) attribute.KeyValue {
	return attribute.StringSlice(key, vals)
}
