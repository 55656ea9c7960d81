package poiorchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/planstate"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/placesvalidator"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

var keywordSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"keywords": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []any{"keywords"},
}

// resolveDestination canonicalizes a free-text destination when a
// CityResolver is configured, falling back to the input unchanged on any
// resolution error (never blocks discovery on a canonicalization failure).
func (o *Orchestrator) resolveDestination(ctx context.Context, destination string) string {
	if o.cityResolver == nil {
		return destination
	}
	detail, err := o.cityResolver.Resolve(ctx, destination, "")
	if err != nil {
		o.logger.WarnContext(ctx, "destination resolution failed, using raw input", slog.Any("error", err))
		return destination
	}
	return detail.Name
}

// Run executes the full state machine (spec.md §4.6) for one persona and
// destination, returning the populated PoiState.
func (o *Orchestrator) Run(ctx context.Context, persona, destination string) (*planstate.PoiState, error) {
	ctx, span := otel.Tracer("PoiOrchestrator").Start(ctx, "Orchestrator.Run", trace.WithAttributes(
		attribute.String("destination", destination),
	))
	defer span.End()

	destination = o.resolveDestination(ctx, destination)

	state := planstate.NewPoiState(persona, destination)
	state.Keywords = o.extractKeywords(ctx, persona, destination)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		web, webRecords, err := o.webBranch(gctx, state.Keywords, persona, destination)
		if err != nil {
			return err
		}
		state.MergePoiData(webRecords)
		state.WebResults = web.candidates
		state.RerankedWeb = web.reranked
		return nil
	})
	g.Go(func() error {
		vec, vecRecords, err := o.vectorBranch(gctx, state.Keywords, destination)
		if err != nil {
			return err
		}
		state.MergePoiData(vecRecords)
		state.VectorResults = vec.candidates
		state.RerankedVector = vec.reranked
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fan-out failed")
		return nil, err
	}

	merged := o.mergeResults(ctx, state)
	state.Merged = merged

	final := make([]travelmodel.PoiRecord, 0, len(merged))
	dataMap := state.PoiDataMap()
	for _, c := range merged {
		if c.PoiID == "" {
			continue
		}
		if rec, ok := dataMap[c.PoiID]; ok {
			final = append(final, rec)
		}
	}
	state.FinalPoiData = final

	span.SetAttributes(attribute.Int("final.count", len(final)))
	span.SetStatus(codes.Ok, "poi discovery completed")
	return state, nil
}

// extractKeywords implements spec.md §4.6's extract_keywords node. On LLM
// failure it falls back to the destination alone, per the invariant; on
// success it enriches the LLM's keywords with dictionary hits from the
// persona text. This node never fails the pipeline: CoreUnavailable is
// reserved for the Itinerary Orchestrator's planning stage (see DESIGN.md).
func (o *Orchestrator) extractKeywords(ctx context.Context, persona, destination string) []string {
	ctx, span := otel.Tracer("PoiOrchestrator").Start(ctx, "extract_keywords")
	defer span.End()

	prompt := fmt.Sprintf("Extract 5 to 10 short travel-interest keywords from this traveler persona. "+
		"Respond as a JSON object with a \"keywords\" array of short strings.\n\nPersona: %s", persona)

	result, err := o.llm.CompleteStructured(ctx, prompt, keywordSchema)
	if err != nil {
		o.logger.WarnContext(ctx, "extract_keywords failed, falling back to destination", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Ok, "fallback: destination only")
		return []string{destination}
	}

	raw, _ := json.Marshal(result["keywords"])
	var keywords []string
	if err := json.Unmarshal(raw, &keywords); err != nil || len(keywords) == 0 {
		span.SetStatus(codes.Ok, "fallback: malformed response")
		return []string{destination}
	}

	enriched := supplementKeywords(persona, keywords, o.cfg.KeywordK)
	span.SetAttributes(attrStrings("keywords", enriched))
	span.SetStatus(codes.Ok, "keywords extracted")
	return enriched
}

type branchResult struct {
	candidates []travelmodel.PoiCandidate
	reranked   []travelmodel.PoiCandidate
}

// webBranch runs web_search -> process_web_results -> rerank_web.
func (o *Orchestrator) webBranch(ctx context.Context, keywords []string, persona, destination string) (branchResult, map[string]travelmodel.PoiRecord, error) {
	ctx, span := otel.Tracer("PoiOrchestrator").Start(ctx, "web_branch")
	defer span.End()

	hits, err := o.web.SearchMulti(ctx, keywords, o.cfg.WebSearchK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "web search failed")
		return branchResult{}, nil, err
	}
	if len(hits) > o.cfg.WebSearchK {
		hits = hits[:o.cfg.WebSearchK]
	}

	candidates, records := o.processWebResults(ctx, hits, persona, destination)

	reranked := o.rerank(ctx, candidates, persona, "rerank_web")
	span.SetAttributes(attribute.Int("candidates", len(candidates)), attribute.Int("reranked", len(reranked)))
	span.SetStatus(codes.Ok, "web branch completed")
	return branchResult{candidates: candidates, reranked: reranked}, records, nil
}

// processWebResults implements spec.md §4.6's per-hit pipeline with a
// concurrency-5 semaphore, summarizing, validating, and indexing each hit.
func (o *Orchestrator) processWebResults(ctx context.Context, hits []travelmodel.PoiCandidate, persona, destination string) ([]travelmodel.PoiCandidate, map[string]travelmodel.PoiRecord) {
	sem := semaphore.NewWeighted(int64(o.cfg.ProcessConcurrency))
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		out     []travelmodel.PoiCandidate
		records = make(map[string]travelmodel.PoiRecord)
	)

	for _, hit := range hits {
		hit := hit
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			summary, err := o.summarizeSingle(ctx, hit, persona)
			if err != nil || summary == "" {
				return
			}
			record, err := o.validator.Map(ctx, placesvalidator.MapInput{Name: summaryName(summary, hit), SourceURL: hit.SourceURL}, destination, true)
			if err != nil {
				o.logger.WarnContext(ctx, "process_web_results: validation failed, skipping", slog.Any("error", err))
				return
			}
			if record == nil {
				return
			}
			if err := o.vector.Add(ctx, *record); err != nil {
				o.logger.WarnContext(ctx, "process_web_results: vector add failed", slog.Any("error", err))
			}

			cand := hit
			cand.PoiID = record.PoiID
			cand.Snippet = summary

			mu.Lock()
			out = append(out, cand)
			records[record.PoiID] = *record
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out, records
}

func summaryName(summary string, hit travelmodel.PoiCandidate) string {
	if hit.Title != "" {
		return hit.Title
	}
	return strings.SplitN(summary, ".", 2)[0]
}

func (o *Orchestrator) summarizeSingle(ctx context.Context, hit travelmodel.PoiCandidate, persona string) (string, error) {
	prompt := fmt.Sprintf("Summarize why this place fits the traveler below in 1-2 sentences. "+
		"If it clearly does not fit, respond with an empty string.\n\nTraveler: %s\n\nPlace: %s\n%s",
		persona, hit.Title, hit.Snippet)
	return o.llm.Complete(ctx, prompt)
}

// vectorBranch runs vector_search -> rerank_vector.
func (o *Orchestrator) vectorBranch(ctx context.Context, keywords []string, destination string) (branchResult, map[string]travelmodel.PoiRecord, error) {
	ctx, span := otel.Tracer("PoiOrchestrator").Start(ctx, "vector_branch")
	defer span.End()

	seen := make(map[string]bool)
	var candidates []travelmodel.PoiCandidate
	records := make(map[string]travelmodel.PoiRecord)

	for _, kw := range keywords {
		hits, err := o.vector.SearchByText(ctx, kw, o.cfg.EmbeddingK, destination)
		if err != nil {
			span.RecordError(err)
			continue
		}
		for _, h := range hits {
			if seen[h.Record.PoiID] {
				continue
			}
			seen[h.Record.PoiID] = true
			records[h.Record.PoiID] = h.Record
			candidates = append(candidates, travelmodel.PoiCandidate{
				Title:     h.Record.Name,
				Snippet:   h.Record.Description,
				Source:    travelmodel.SourceVector,
				Relevance: h.Relevance,
				PoiID:     h.Record.PoiID,
			})
		}
	}

	reranked := o.rerank(ctx, candidates, "", "rerank_vector")
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	span.SetStatus(codes.Ok, "vector branch completed")
	return branchResult{candidates: candidates, reranked: reranked}, records, nil
}

var rerankSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"scores": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "number"},
		},
	},
	"required": []any{"scores"},
}

// rerank implements spec.md §4.6's rerank_web/rerank_vector: the LLM scores
// each candidate in [0,1]; on failure the original top-n passes through.
func (o *Orchestrator) rerank(ctx context.Context, candidates []travelmodel.PoiCandidate, persona, label string) []travelmodel.PoiCandidate {
	ctx, span := otel.Tracer("PoiOrchestrator").Start(ctx, label)
	defer span.End()

	if len(candidates) == 0 {
		span.SetStatus(codes.Ok, "no candidates")
		return nil
	}

	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s: %s\n", i, c.Title, c.Snippet)
	}
	prompt := fmt.Sprintf("Score each numbered place below from 0 to 1 for relevance to this traveler. "+
		"Respond as a JSON object with a \"scores\" array, one number per place, in the same order.\n\n"+
		"Traveler: %s\n\n%s", persona, b.String())

	result, err := o.llm.CompleteStructured(ctx, prompt, rerankSchema)
	if err != nil {
		o.logger.WarnContext(ctx, "rerank failed, passing through original order", slog.String("node", label), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Ok, "passthrough")
		return truncate(candidates, o.cfg.RerankTopN)
	}

	raw, _ := json.Marshal(result["scores"])
	var scores []float64
	if err := json.Unmarshal(raw, &scores); err != nil || len(scores) != len(candidates) {
		span.SetStatus(codes.Ok, "passthrough: malformed scores")
		return truncate(candidates, o.cfg.RerankTopN)
	}

	scored := make([]travelmodel.PoiCandidate, len(candidates))
	copy(scored, candidates)
	for i := range scored {
		scored[i].Relevance = clamp01(scores[i])
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Relevance > scored[j].Relevance })

	span.SetStatus(codes.Ok, "reranked")
	return truncate(scored, o.cfg.RerankTopN)
}

func truncate(cands []travelmodel.PoiCandidate, n int) []travelmodel.PoiCandidate {
	if n <= 0 || len(cands) <= n {
		return cands
	}
	return cands[:n]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// mergeResults implements spec.md §4.6's merge_results: weighted combine on
// items present in both branches, dedup by poi_id then URL, truncate to
// final_poi_count.
func (o *Orchestrator) mergeResults(ctx context.Context, state *planstate.PoiState) []travelmodel.PoiCandidate {
	_, span := otel.Tracer("PoiOrchestrator").Start(ctx, "merge_results")
	defer span.End()

	type entry struct {
		cand     travelmodel.PoiCandidate
		webScore float64
		vecScore float64
		hasWeb   bool
		hasVec   bool
	}
	byKey := make(map[string]*entry)
	keyOf := func(c travelmodel.PoiCandidate) string {
		if c.PoiID != "" {
			return "id:" + c.PoiID
		}
		return "url:" + c.SourceURL
	}

	for _, c := range state.RerankedWeb {
		k := keyOf(c)
		e, ok := byKey[k]
		if !ok {
			e = &entry{cand: c}
			byKey[k] = e
		}
		e.hasWeb = true
		e.webScore = c.Relevance
	}
	for _, c := range state.RerankedVector {
		k := keyOf(c)
		e, ok := byKey[k]
		if !ok {
			e = &entry{cand: c}
			byKey[k] = e
		}
		e.hasVec = true
		e.vecScore = c.Relevance
	}

	merged := make([]travelmodel.PoiCandidate, 0, len(byKey))
	for _, e := range byKey {
		var score float64
		switch {
		case e.hasWeb && e.hasVec:
			score = o.cfg.WebWeight*e.webScore + o.cfg.EmbeddingWeight*e.vecScore
		case e.hasWeb:
			score = o.cfg.WebWeight * e.webScore
		case e.hasVec:
			score = o.cfg.EmbeddingWeight * e.vecScore
		}
		c := e.cand
		c.Relevance = clamp01(score)
		merged = append(merged, c)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Relevance > merged[j].Relevance })
	merged = truncate(merged, o.cfg.FinalPoiCount)

	span.SetAttributes(attribute.Int("merged.count", len(merged)))
	span.SetStatus(codes.Ok, "merge completed")
	return merged
}
