// Package itinorchestrator implements the itinerary refinement loop from
// spec.md §4.7: a sufficiency gate that tops up a thin POI set, then a
// fixed-point loop driven by a rule-based task queue until the plan
// stabilizes or MAX_ITERATIONS is exhausted.
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
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/llmclient"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/planstate"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/poiorchestrator"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/travelleg"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

// Config holds the tunables named in spec.md §4.7/§6.
type Config struct {
	MaxIterations     int
	MaxDailyMinutes   int
	OptimalPoiCount   int
	MaxPoiCount       int
	MinPoiCount       int
	MinPoiCountGate   int
	MaxEnrichAttempts int
}

// DefaultConfig mirrors spec.md §4.7/§6's defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:     5,
		MaxDailyMinutes:   720,
		OptimalPoiCount:   4,
		MaxPoiCount:       6,
		MinPoiCount:       2,
		MinPoiCountGate:   5,
		MaxEnrichAttempts: 2,
	}
}

// Orchestrator wires the LLM, Travel-leg Calculator, and the POI
// Orchestrator (for sufficiency enrichment) behind the refinement loop.
type Orchestrator struct {
	llm    llmclient.Client
	legs   travelleg.Calculator
	poi    *poiorchestrator.Orchestrator
	cfg    Config
	logger *slog.Logger
	cache  ResultCache
}

func New(llm llmclient.Client, legs travelleg.Calculator, poi *poiorchestrator.Orchestrator, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{llm: llm, legs: legs, poi: poi, cfg: cfg, logger: logger}
}

// WithCache attaches a best-effort result cache (local or Redis-backed).
func (o *Orchestrator) WithCache(c ResultCache) *Orchestrator {
	o.cache = c
	return o
}

// CoreUnavailableError is raised only when the LLM is entirely unavailable
// during planning, after retries (spec.md §7) — the one failure mode that
// surfaces the itinerary pipeline's otherwise-degrading error handling.
type CoreUnavailableError struct {
	Stage string
	Err   error
}

func (e *CoreUnavailableError) Error() string {
	return fmt.Sprintf("itinorchestrator: core unavailable at %s: %v", e.Stage, e.Err)
}
func (e *CoreUnavailableError) Unwrap() error { return e.Err }

// PlanRequest is the caller-facing input to Plan.
type PlanRequest struct {
	Pois        []travelmodel.PoiRecord
	Destination string
	StartDate   string
	EndDate     string
	Budget      float64
	Persona     string
}

// PlanResult is the caller-facing output: the final itineraries plus a
// warning marker when MAX_ITERATIONS was exhausted (spec.md §7,
// PlanTimeoutExceeded: not an error, a branch).
type PlanResult struct {
	Itineraries    []travelmodel.DayItinerary
	IterationsUsed int
	TimedOut       bool
}

// Plan runs the full pipeline: the sufficiency gate, then the fixed-point
// refinement loop, returning best_itineraries on exhaustion.
func (o *Orchestrator) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	ctx, span := otel.Tracer("ItinOrchestrator").Start(ctx, "Orchestrator.Plan", trace.WithAttributes(
		attribute.String("destination", req.Destination),
		attribute.Int("input_pois", len(req.Pois)),
	))
	defer span.End()

	if o.cache != nil {
		if cached, ok := o.cache.Get(ctx, req); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			span.SetStatus(codes.Ok, "served from cache")
			return cached, nil
		}
	}

	pois, err := o.ensureSufficiency(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sufficiency gate failed")
		return nil, err
	}

	state := planstate.NewItinState(pois, req.Destination, req.StartDate, req.EndDate, req.Budget, req.Persona)
	o.summarizePois(ctx, state)

	timedOut := true
	for iter := 0; iter < o.cfg.MaxIterations; iter++ {
		state.IterationCount = iter + 1
		state.DetectPoiChange()

		queue := TodoAgent(state)
		if len(queue) == 0 {
			timedOut = false
			break
		}
		state.PushTasks(queue...)

		// Whether or not the drain stopped early for regeneration, the next
		// pass's TodoAgent call decides what runs next; only an empty queue
		// ends the loop before MaxIterations.
		_, err := o.drainQueue(ctx, state)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "task execution failed")
			return nil, err
		}

		penalty := computePenalty(state.Itineraries, o.cfg, state.Budget)
		state.RecordAttempt(penalty)
	}

	final := state.Itineraries
	if timedOut && state.HasBest {
		final = state.BestItineraries
	}

	span.SetAttributes(attribute.Int("iterations_used", state.IterationCount), attribute.Bool("timed_out", timedOut))
	span.SetStatus(codes.Ok, "planning completed")
	result := &PlanResult{Itineraries: final, IterationsUsed: state.IterationCount, TimedOut: timedOut}
	if o.cache != nil {
		o.cache.Set(ctx, req, result)
	}
	return result, nil
}

// drainQueue executes tasks FIFO until the queue empties or a task sets
// feedback demanding regeneration (returns to plan/refine per spec.md §4.7
// step 3).
func (o *Orchestrator) drainQueue(ctx context.Context, state *planstate.ItinState) (bool, error) {
	for {
		task, ok := state.PopTask()
		if !ok {
			return false, nil
		}
		state.CurrentTask = task

		switch task {
		case planstate.TaskPlan:
			if err := o.planOrRefine(ctx, state); err != nil {
				return false, err
			}
			state.ValidationFeedback = ""
			state.ScheduleFeedback = ""
		case planstate.TaskLegs:
			if err := o.runLegs(ctx, state); err != nil {
				return false, err
			}
		case planstate.TaskValidate:
			feedback := o.runValidate(ctx, state)
			if feedback != "" {
				state.ValidationFeedback = feedback
				state.ClearQueue()
				return true, nil
			}
			state.ValidationFeedback = ""
		case planstate.TaskBalance:
			feedback := o.runBalance(ctx, state)
			if feedback != "" {
				state.ScheduleFeedback = feedback
				state.ClearQueue()
				return true, nil
			}
			state.ScheduleFeedback = ""
		case planstate.TaskBalanceApply:
			if err := o.applyBalance(ctx, state); err != nil {
				return false, err
			}
		}
	}
}

var planSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"days": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date":    map[string]any{"type": "string"},
					"poi_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []any{"date", "poi_ids"},
			},
		},
	},
	"required": []any{"days"},
}

type planDay struct {
	Date   string   `json:"date"`
	PoiIDs []string `json:"poi_ids"`
}

type planResponse struct {
	Days []planDay `json:"days"`
}

// planOrRefine implements spec.md §4.7 step 1: generate on the first pass,
// refine with pending feedback on subsequent passes.
func (o *Orchestrator) planOrRefine(ctx context.Context, state *planstate.ItinState) error {
	ctx, span := otel.Tracer("ItinOrchestrator").Start(ctx, "task:plan")
	defer span.End()

	prompt := o.buildPlanPrompt(state)
	result, err := o.llm.CompleteStructured(ctx, prompt, planSchema)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan/refine unavailable")
		return &CoreUnavailableError{Stage: "plan", Err: err}
	}

	raw, _ := json.Marshal(result)
	var parsed planResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed.Days) == 0 {
		span.SetStatus(codes.Error, "malformed plan response")
		return &CoreUnavailableError{Stage: "plan", Err: fmt.Errorf("malformed plan response")}
	}

	byID := make(map[string]travelmodel.PoiRecord, len(state.Pois))
	for _, p := range state.Pois {
		byID[p.PoiID] = p
	}

	itineraries := make([]travelmodel.DayItinerary, 0, len(parsed.Days))
	for _, d := range parsed.Days {
		day := travelmodel.DayItinerary{Date: d.Date}
		for _, id := range d.PoiIDs {
			if rec, ok := byID[id]; ok {
				day.Pois = append(day.Pois, rec)
			}
		}
		itineraries = append(itineraries, day)
	}
	state.Itineraries = itineraries

	span.SetAttributes(attribute.Int("days", len(itineraries)))
	span.SetStatus(codes.Ok, "plan produced")
	return nil
}

func (o *Orchestrator) buildPlanPrompt(state *planstate.ItinState) string {
	mode := "Generate"
	if state.IterationCount > 1 {
		mode = "Refine"
	}

	names := make([]string, 0, len(state.Pois))
	for _, p := range state.Pois {
		if s, ok := state.PoiSummaries[p.PoiID]; ok && s.Summary != "" {
			names = append(names, fmt.Sprintf("%s (id=%s, category=%s): %s %s",
				p.Name, p.PoiID, p.Category, s.Summary, strings.Join(s.Highlights, "; ")))
			continue
		}
		names = append(names, fmt.Sprintf("%s (id=%s, category=%s)", p.Name, p.PoiID, p.Category))
	}

	feedback := ""
	if state.ValidationFeedback != "" {
		feedback += "\nValidation feedback to address: " + state.ValidationFeedback
	}
	if state.ScheduleFeedback != "" {
		feedback += "\nSchedule feedback to address: " + state.ScheduleFeedback
	}

	return fmt.Sprintf("%s a day-by-day itinerary for %s from %s to %s for this traveler: %s.\n"+
		"Assign each date a subset of these POIs (by id), in a sensible order. Every date must be within range. "+
		"Respond as JSON with a \"days\" array of {date, poi_ids}.%s\n\nAvailable POIs:\n%s",
		mode, state.Destination, state.StartDate, state.EndDate, state.Persona, feedback, fmt.Sprint(names))
}

// ensureSufficiency implements spec.md §4.7's pre-loop gate: if the input
// set is smaller than MinPoiCountGate, invoke the POI Orchestrator to
// enrich it, up to MaxEnrichAttempts.
func (o *Orchestrator) ensureSufficiency(ctx context.Context, req PlanRequest) ([]travelmodel.PoiRecord, error) {
	ctx, span := otel.Tracer("ItinOrchestrator").Start(ctx, "sufficiency_gate")
	defer span.End()

	pois := req.Pois
	if len(pois) >= o.cfg.MinPoiCountGate || o.poi == nil {
		span.SetStatus(codes.Ok, "already sufficient")
		return pois, nil
	}

	for attempt := 0; attempt < o.cfg.MaxEnrichAttempts && len(pois) < o.cfg.MinPoiCountGate; attempt++ {
		discovery, err := o.poi.Run(ctx, req.Persona, req.Destination)
		if err != nil {
			o.logger.WarnContext(ctx, "poi enrichment attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))
			span.RecordError(err)
			continue
		}
		pois = mergePoiRecords(pois, discovery.FinalPoiData)
	}

	span.SetAttributes(attribute.Int("pois_after_enrichment", len(pois)))
	span.SetStatus(codes.Ok, "sufficiency gate completed")
	return pois, nil
}

func mergePoiRecords(existing, incoming []travelmodel.PoiRecord) []travelmodel.PoiRecord {
	seen := make(map[string]bool, len(existing))
	out := make([]travelmodel.PoiRecord, 0, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.PoiID] = true
		out = append(out, r)
	}
	for _, r := range incoming {
		if seen[r.PoiID] {
			continue
		}
		seen[r.PoiID] = true
		out = append(out, r)
	}
	return out
}
