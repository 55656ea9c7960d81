// Package websearch implements the keyword -> ranked web hits contract from
// spec.md §4.3: a single query and a concurrent multi-query fan-out with
// URL dedup, sorted by descending relevance.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

// Adapter is the web search contract consumed by the POI Orchestrator.
type Adapter interface {
	Search(ctx context.Context, query string, n int) ([]travelmodel.PoiCandidate, error)
	SearchMulti(ctx context.Context, queries []string, perQuery int) ([]travelmodel.PoiCandidate, error)
}

// HTTPAdapter targets a Tavily-shaped search endpoint (spec.md §6). A
// missing API key degrades to empty results rather than failing, per
// spec.md §4.3/§7 (WebSearchUnavailable).
type HTTPAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPAdapter builds an adapter against baseURL. An empty apiKey is
// valid: every call then degrades to an empty result set.
func NewHTTPAdapter(baseURL, apiKey string, logger *slog.Logger) *HTTPAdapter {
	if baseURL == "" {
		baseURL = "https://api.tavily.com/search"
	}
	return &HTTPAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:  logger,
	}
}

var _ Adapter = (*HTTPAdapter)(nil)

type searchRequest struct {
	APIKey  string `json:"api_key"`
	Query   string `json:"query"`
	MaxHits int    `json:"max_results"`
}

type searchHit struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

func (a *HTTPAdapter) Search(ctx context.Context, query string, n int) ([]travelmodel.PoiCandidate, error) {
	ctx, span := otel.Tracer("WebSearch").Start(ctx, "HTTPAdapter.Search", trace.WithAttributes(
		attribute.String("query", query),
		attribute.Int("n", n),
	))
	defer span.End()

	if a.apiKey == "" {
		a.logger.WarnContext(ctx, "web search api key not configured, returning empty results")
		span.SetStatus(codes.Ok, "degraded: no api key")
		return nil, nil
	}

	body, err := json.Marshal(searchRequest{APIKey: a.apiKey, Query: query, MaxHits: n})
	if err != nil {
		return nil, fmt.Errorf("websearch: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.WarnContext(ctx, "web search request failed, degrading to empty", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Ok, "degraded: transport error")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		a.logger.WarnContext(ctx, "web search returned error status, degrading to empty", slog.Int("status", resp.StatusCode))
		span.SetStatus(codes.Ok, "degraded: upstream error")
		return nil, nil
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		a.logger.WarnContext(ctx, "web search response malformed, degrading to empty", slog.Any("error", err))
		span.SetStatus(codes.Ok, "degraded: malformed response")
		return nil, nil
	}

	out := make([]travelmodel.PoiCandidate, 0, len(parsed.Results))
	for _, hit := range parsed.Results {
		snippet := hit.Content
		if snippet == "" {
			snippet = a.scrapeSnippet(ctx, hit.URL)
		}
		out = append(out, travelmodel.PoiCandidate{
			Title:     hit.Title,
			Snippet:   snippet,
			SourceURL: hit.URL,
			Source:    travelmodel.SourceWeb,
			Relevance: clamp01(hit.Score),
		})
	}
	span.SetAttributes(attribute.Int("hits", len(out)))
	span.SetStatus(codes.Ok, "search completed")
	return out, nil
}

// scrapeSnippet is the goquery-based fallback used when a hit arrives with
// no content field (SPEC_FULL.md DOMAIN STACK). Best-effort: any failure
// just yields an empty snippet, it never fails the search.
func (a *HTTPAdapter) scrapeSnippet(ctx context.Context, url string) string {
	if url == "" {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ""
	}
	if meta, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && meta != "" {
		return meta
	}
	return strings.TrimSpace(doc.Find("p").First().Text())
}

// SearchMulti issues all queries concurrently (§4.3), deduplicates by URL
// and sorts the union by descending relevance.
func (a *HTTPAdapter) SearchMulti(ctx context.Context, queries []string, perQuery int) ([]travelmodel.PoiCandidate, error) {
	ctx, span := otel.Tracer("WebSearch").Start(ctx, "HTTPAdapter.SearchMulti", trace.WithAttributes(
		attribute.Int("queries", len(queries)),
		attribute.Int("per_query", perQuery),
	))
	defer span.End()

	if len(queries) == 0 {
		span.SetStatus(codes.Ok, "no queries")
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([][]travelmodel.PoiCandidate, len(queries))
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			hits, err := a.Search(gctx, q, perQuery)
			if err != nil {
				// Search already degrades internally; a non-nil error here
				// would be a programming bug, not a transient failure, so
				// it is allowed to cancel the group.
				return err
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "multi search failed")
		return nil, err
	}

	seen := make(map[string]bool)
	var merged []travelmodel.PoiCandidate
	for _, hits := range results {
		for _, h := range hits {
			key := h.SourceURL
			if key == "" {
				key = h.Title
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, h)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Relevance > merged[j].Relevance })

	span.SetAttributes(attribute.Int("merged.count", len(merged)))
	span.SetStatus(codes.Ok, "multi search completed")
	return merged, nil
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
