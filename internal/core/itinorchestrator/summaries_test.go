package itinorchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/planstate"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

func TestSummarizePois_SuccessPopulatesSummariesByID(t *testing.T) {
	llm := new(MockLLM)
	llm.On("CompleteStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]any{
			"summaries": []any{
				map[string]any{"poi_id": "a", "summary": "a riverside museum", "highlights": []any{"free entry"}},
			},
		}, nil)

	o := New(llm, new(MockLegs), nil, DefaultConfig(), testLogger())
	state := planstate.NewItinState(samplePois(2), "Lisbon", "2026-01-01", "2026-01-02", 100, "art lover")

	o.summarizePois(context.Background(), state)

	require.Len(t, state.PoiSummaries, 2)
	assert.Equal(t, "a riverside museum", state.PoiSummaries["a"].Summary)
	assert.Equal(t, []string{"free entry"}, state.PoiSummaries["a"].Highlights)
	// POI omitted by the LLM still gets a bare fallback entry.
	assert.Equal(t, "", state.PoiSummaries["b"].Summary)
	assert.Equal(t, "poi", state.PoiSummaries["b"].Name)
}

func TestSummarizePois_LLMFailureDegradesToBareRecords(t *testing.T) {
	llm := new(MockLLM)
	llm.On("CompleteStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	o := New(llm, new(MockLegs), nil, DefaultConfig(), testLogger())
	state := planstate.NewItinState(samplePois(1), "Lisbon", "2026-01-01", "2026-01-02", 100, "art lover")

	o.summarizePois(context.Background(), state)

	require.Len(t, state.PoiSummaries, 1)
	assert.Equal(t, travelmodel.PoiSummary{PoiID: "a", Name: "poi", Category: travelmodel.CategoryAttraction}, state.PoiSummaries["a"])
}

func TestSummarizePois_MalformedResponseDegradesToBareRecords(t *testing.T) {
	llm := new(MockLLM)
	llm.On("CompleteStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]any{"unexpected": "shape"}, nil)

	o := New(llm, new(MockLegs), nil, DefaultConfig(), testLogger())
	state := planstate.NewItinState(samplePois(1), "Lisbon", "2026-01-01", "2026-01-02", 100, "art lover")

	o.summarizePois(context.Background(), state)

	require.Len(t, state.PoiSummaries, 1)
	assert.Equal(t, "poi", state.PoiSummaries["a"].Name)
	assert.Equal(t, "", state.PoiSummaries["a"].Summary)
}

func TestSummarizePois_EmptyPoisIsNoop(t *testing.T) {
	o := New(new(MockLLM), new(MockLegs), nil, DefaultConfig(), testLogger())
	state := planstate.NewItinState(nil, "Lisbon", "2026-01-01", "2026-01-02", 100, "art lover")

	o.summarizePois(context.Background(), state)

	assert.Empty(t, state.PoiSummaries)
}
