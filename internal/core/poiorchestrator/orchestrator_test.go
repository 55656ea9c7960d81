package poiorchestrator

import (
	"context"
	"iter"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/placesvalidator"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/planstate"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/vectorindex"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

// MockLLM is a mock implementation of llmclient.Client.
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockLLM) Stream(ctx context.Context, prompt string) (iter.Seq2[string, error], error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(iter.Seq2[string, error]), args.Error(1)
}

func (m *MockLLM) CompleteStructured(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	args := m.Called(ctx, prompt, schema)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

// MockWeb is a mock implementation of websearch.Adapter.
type MockWeb struct {
	mock.Mock
}

func (m *MockWeb) Search(ctx context.Context, query string, n int) ([]travelmodel.PoiCandidate, error) {
	args := m.Called(ctx, query, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]travelmodel.PoiCandidate), args.Error(1)
}

func (m *MockWeb) SearchMulti(ctx context.Context, queries []string, perQuery int) ([]travelmodel.PoiCandidate, error) {
	args := m.Called(ctx, queries, perQuery)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]travelmodel.PoiCandidate), args.Error(1)
}

// MockVector is a mock implementation of vectorindex.VectorIndex.
type MockVector struct {
	mock.Mock
}

func (m *MockVector) Add(ctx context.Context, record travelmodel.PoiRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockVector) AddBatch(ctx context.Context, records []travelmodel.PoiRecord) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}

func (m *MockVector) SearchByText(ctx context.Context, query string, k int, cityFilter string) ([]vectorindex.Candidate, error) {
	args := m.Called(ctx, query, k, cityFilter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorindex.Candidate), args.Error(1)
}

func (m *MockVector) SearchByVector(ctx context.Context, vec []float32, k int, cityFilter string) ([]vectorindex.Candidate, error) {
	args := m.Called(ctx, vec, k, cityFilter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorindex.Candidate), args.Error(1)
}

func (m *MockVector) Size(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockValidator is a mock implementation of placesvalidator.Validator.
type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Map(ctx context.Context, input placesvalidator.MapInput, city string, raiseOnFailure bool) (*travelmodel.PoiRecord, error) {
	args := m.Called(ctx, input, city, raiseOnFailure)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*travelmodel.PoiRecord), args.Error(1)
}

func (m *MockValidator) MapBatch(ctx context.Context, inputs []placesvalidator.MapInput, city string) ([]travelmodel.PoiRecord, error) {
	args := m.Called(ctx, inputs, city)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]travelmodel.PoiRecord), args.Error(1)
}

// MockCityResolver is a mock implementation of placesvalidator.CityResolver.
type MockCityResolver struct {
	mock.Mock
}

func (m *MockCityResolver) Resolve(ctx context.Context, name, country string) (*placesvalidator.CityDetail, error) {
	args := m.Called(ctx, name, country)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*placesvalidator.CityDetail), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestState() *planstate.PoiState {
	return planstate.NewPoiState("persona", "destination")
}

func TestExtractKeywords_LLMFailureFallsBackToDestination(t *testing.T) {
	llm := new(MockLLM)
	llm.On("CompleteStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	o := New(llm, nil, nil, nil, DefaultConfig(), testLogger())

	got := o.extractKeywords(context.Background(), "loves museums", "Lisbon")
	assert.Equal(t, []string{"Lisbon"}, got)
	llm.AssertExpectations(t)
}

func TestExtractKeywords_MalformedResponseFallsBackToDestination(t *testing.T) {
	llm := new(MockLLM)
	llm.On("CompleteStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]any{"keywords": "not-an-array"}, nil)

	o := New(llm, nil, nil, nil, DefaultConfig(), testLogger())

	got := o.extractKeywords(context.Background(), "loves museums", "Lisbon")
	assert.Equal(t, []string{"Lisbon"}, got)
}

func TestExtractKeywords_SuccessEnrichesFromPersona(t *testing.T) {
	llm := new(MockLLM)
	llm.On("CompleteStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]any{"keywords": []any{"museum", "art"}}, nil)

	cfg := DefaultConfig()
	o := New(llm, nil, nil, nil, cfg, testLogger())

	got := o.extractKeywords(context.Background(), "a museum lover who enjoys wine tasting", "Lisbon")
	assert.Contains(t, got, "museum")
	assert.Contains(t, got, "art")
}

func TestRerank_LLMFailurePassesThroughTopN(t *testing.T) {
	llm := new(MockLLM)
	llm.On("CompleteStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	cfg := DefaultConfig()
	cfg.RerankTopN = 2
	o := New(llm, nil, nil, nil, cfg, testLogger())

	candidates := []travelmodel.PoiCandidate{
		{Title: "A", Source: travelmodel.SourceWeb},
		{Title: "B", Source: travelmodel.SourceWeb},
		{Title: "C", Source: travelmodel.SourceWeb},
	}
	out := o.rerank(context.Background(), candidates, "persona", "rerank_web")
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Title)
	assert.Equal(t, "B", out[1].Title)
}

func TestRerank_EmptyCandidatesShortCircuits(t *testing.T) {
	llm := new(MockLLM)
	o := New(llm, nil, nil, nil, DefaultConfig(), testLogger())

	out := o.rerank(context.Background(), nil, "persona", "rerank_web")
	assert.Nil(t, out)
	llm.AssertNotCalled(t, "CompleteStructured")
}

func TestRerank_ScoresReorderCandidates(t *testing.T) {
	llm := new(MockLLM)
	llm.On("CompleteStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]any{"scores": []any{0.2, 0.9}}, nil)

	o := New(llm, nil, nil, nil, DefaultConfig(), testLogger())

	candidates := []travelmodel.PoiCandidate{
		{Title: "Low", Source: travelmodel.SourceWeb},
		{Title: "High", Source: travelmodel.SourceWeb},
	}
	out := o.rerank(context.Background(), candidates, "persona", "rerank_web")
	require.Len(t, out, 2)
	assert.Equal(t, "High", out[0].Title)
	assert.Equal(t, "Low", out[1].Title)
}

func TestMergeResults_WeightsBothBranchesAndDedupsByID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WebWeight = 0.6
	cfg.EmbeddingWeight = 0.4
	cfg.FinalPoiCount = 10
	o := New(new(MockLLM), nil, nil, nil, cfg, testLogger())

	state := newTestState()
	state.RerankedWeb = []travelmodel.PoiCandidate{
		{PoiID: "p1", Title: "Both", Relevance: 1.0, Source: travelmodel.SourceWeb},
		{PoiID: "p2", Title: "WebOnly", Relevance: 0.5, Source: travelmodel.SourceWeb},
	}
	state.RerankedVector = []travelmodel.PoiCandidate{
		{PoiID: "p1", Title: "Both", Relevance: 1.0, Source: travelmodel.SourceVector},
		{PoiID: "p3", Title: "VecOnly", Relevance: 0.8, Source: travelmodel.SourceVector},
	}

	merged := o.mergeResults(context.Background(), state)
	require.Len(t, merged, 3)

	byID := make(map[string]travelmodel.PoiCandidate, len(merged))
	for _, c := range merged {
		byID[c.PoiID] = c
	}
	assert.InDelta(t, 1.0, byID["p1"].Relevance, 1e-9)
	assert.InDelta(t, 0.3, byID["p2"].Relevance, 1e-9)
	assert.InDelta(t, 0.32, byID["p3"].Relevance, 1e-9)
	// highest combined score sorts first
	assert.Equal(t, "p1", merged[0].PoiID)
}

func TestMergeResults_TruncatesToFinalPoiCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FinalPoiCount = 1
	o := New(new(MockLLM), nil, nil, nil, cfg, testLogger())

	state := newTestState()
	state.RerankedWeb = []travelmodel.PoiCandidate{
		{PoiID: "p1", Relevance: 0.4, Source: travelmodel.SourceWeb},
		{PoiID: "p2", Relevance: 0.9, Source: travelmodel.SourceWeb},
	}

	merged := o.mergeResults(context.Background(), state)
	require.Len(t, merged, 1)
	assert.Equal(t, "p2", merged[0].PoiID)
}

func TestResolveDestination_NilResolverReturnsInputUnchanged(t *testing.T) {
	o := New(new(MockLLM), nil, nil, nil, DefaultConfig(), testLogger())
	got := o.resolveDestination(context.Background(), "lisbon")
	assert.Equal(t, "lisbon", got)
}

func TestResolveDestination_ResolverFailureFallsBackToInput(t *testing.T) {
	resolver := new(MockCityResolver)
	resolver.On("Resolve", mock.Anything, "lsbon", "").Return(nil, assert.AnError)

	o := New(new(MockLLM), nil, nil, nil, DefaultConfig(), testLogger()).WithCityResolver(resolver)
	got := o.resolveDestination(context.Background(), "lsbon")
	assert.Equal(t, "lsbon", got)
}

func TestResolveDestination_ResolverSuccessCanonicalizes(t *testing.T) {
	resolver := new(MockCityResolver)
	resolver.On("Resolve", mock.Anything, "lisbon", "").
		Return(&placesvalidator.CityDetail{Name: "Lisbon"}, nil)

	o := New(new(MockLLM), nil, nil, nil, DefaultConfig(), testLogger()).WithCityResolver(resolver)
	got := o.resolveDestination(context.Background(), "lisbon")
	assert.Equal(t, "Lisbon", got)
}
