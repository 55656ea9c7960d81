package itinorchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/planstate"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

var poiSummarySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summaries": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"poi_id":     map[string]any{"type": "string"},
					"summary":    map[string]any{"type": "string"},
					"highlights": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []any{"poi_id", "summary"},
			},
		},
	},
	"required": []any{"summaries"},
}

type poiSummaryResponse struct {
	Summaries []struct {
		PoiID      string   `json:"poi_id"`
		Summary    string   `json:"summary"`
		Highlights []string `json:"highlights"`
	} `json:"summaries"`
}

// summarizePois populates state.PoiSummaries (spec.md §3's PoiSummary,
// consumed only by the planner) with one LLM-produced summary per POI,
// computed once per Plan call. On any failure it degrades to a trivial
// summary built from the record's own name/category rather than failing
// the plan: PoiSummary is planner-prompt flavor, not load-bearing.
func (o *Orchestrator) summarizePois(ctx context.Context, state *planstate.ItinState) {
	ctx, span := otel.Tracer("ItinOrchestrator").Start(ctx, "task:summarize_pois")
	defer span.End()

	state.PoiSummaries = make(map[string]travelmodel.PoiSummary, len(state.Pois))
	fallback := func() {
		for _, p := range state.Pois {
			state.PoiSummaries[p.PoiID] = travelmodel.PoiSummary{
				PoiID: p.PoiID, Name: p.Name, Category: p.Category,
			}
		}
	}

	if len(state.Pois) == 0 {
		span.SetStatus(codes.Ok, "no pois to summarize")
		return
	}

	var sb strings.Builder
	for _, p := range state.Pois {
		fmt.Fprintf(&sb, "- id=%s name=%s category=%s\n", p.PoiID, p.Name, p.Category)
	}
	prompt := fmt.Sprintf("For the traveler persona %q, write a 1-sentence summary and up to 3 highlights "+
		"for each point of interest below, to help an itinerary planner choose what to visit.\n\n%s",
		state.Persona, sb.String())

	result, err := o.llm.CompleteStructured(ctx, prompt, poiSummarySchema)
	if err != nil {
		o.logger.WarnContext(ctx, "summarize_pois: LLM unavailable, falling back to bare records", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Ok, "degraded: llm unavailable")
		fallback()
		return
	}

	raw, _ := json.Marshal(result)
	var parsed poiSummaryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed.Summaries) == 0 {
		span.SetStatus(codes.Ok, "degraded: malformed response")
		fallback()
		return
	}

	byID := make(map[string]travelmodel.PoiRecord, len(state.Pois))
	for _, p := range state.Pois {
		byID[p.PoiID] = p
	}
	for _, s := range parsed.Summaries {
		rec, ok := byID[s.PoiID]
		if !ok {
			continue
		}
		state.PoiSummaries[s.PoiID] = travelmodel.PoiSummary{
			PoiID: s.PoiID, Name: rec.Name, Category: rec.Category,
			Summary: s.Summary, Highlights: s.Highlights,
		}
	}
	// Any POI the LLM omitted still gets a bare entry so buildPlanPrompt
	// never has to special-case a missing summary.
	for _, p := range state.Pois {
		if _, ok := state.PoiSummaries[p.PoiID]; !ok {
			state.PoiSummaries[p.PoiID] = travelmodel.PoiSummary{PoiID: p.PoiID, Name: p.Name, Category: p.Category}
		}
	}

	span.SetAttributes(attribute.Int("summarized", len(parsed.Summaries)))
	span.SetStatus(codes.Ok, "pois summarized")
}
