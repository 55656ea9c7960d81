// Package travelleg implements the inter-POI transfer estimation contract
// from spec.md §4.5: a single leg or a full day's sequence of legs, memoized
// for the lifetime of the process.
package travelleg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

// Calculator is the contract consumed by the Itinerary Orchestrator.
type Calculator interface {
	Calc(ctx context.Context, fromPoi, toPoi travelmodel.PoiRecord, mode travelmodel.TravelMode) (travelmodel.Transfer, error)
	CalcSequence(ctx context.Context, pois []travelmodel.PoiRecord, mode travelmodel.TravelMode) ([]travelmodel.Transfer, error)
}

// directionsElement is the subset consumed from a Google Distance Matrix-shaped
// response, the pack's only concrete directions API surface.
type directionsElement struct {
	Status   string `json:"status"`
	Duration struct {
		Value int `json:"value"` // seconds
	} `json:"duration"`
	Distance struct {
		Value int `json:"value"` // meters
	} `json:"distance"`
}

type directionsResponse struct {
	Rows []struct {
		Elements []directionsElement `json:"elements"`
	} `json:"rows"`
}

// HTTPCalculator calls an external directions API, memoizing results in a
// process-lifetime go-cache.Cache keyed by (from_poi_id, to_poi_id, mode) —
// the same caching idiom the teacher uses for LLM-derived POI lists.
type HTTPCalculator struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
	cache   *cache.Cache
}

// NewHTTPCalculator builds a calculator against baseURL. cache has no
// expiration: spec.md §4.5 requires process-lifetime memoization.
func NewHTTPCalculator(baseURL, apiKey string, logger *slog.Logger) *HTTPCalculator {
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com/maps/api/distancematrix/json"
	}
	return &HTTPCalculator{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		cache:   cache.New(cache.NoExpiration, cache.NoExpiration),
	}
}

var _ Calculator = (*HTTPCalculator)(nil)

func memoKey(fromPoiID, toPoiID string, mode travelmodel.TravelMode) string {
	return fromPoiID + "|" + toPoiID + "|" + string(mode)
}

func (c *HTTPCalculator) Calc(ctx context.Context, fromPoi, toPoi travelmodel.PoiRecord, mode travelmodel.TravelMode) (travelmodel.Transfer, error) {
	ctx, span := otel.Tracer("TravelLeg").Start(ctx, "HTTPCalculator.Calc", trace.WithAttributes(
		attribute.String("from_poi_id", fromPoi.PoiID),
		attribute.String("to_poi_id", toPoi.PoiID),
		attribute.String("mode", string(mode)),
	))
	defer span.End()

	key := memoKey(fromPoi.PoiID, toPoi.PoiID, mode)
	if cached, ok := c.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		span.SetStatus(codes.Ok, "memoized")
		return cached.(travelmodel.Transfer), nil
	}

	transfer, err := c.query(ctx, fromPoi, toPoi, mode)
	if err != nil {
		c.logger.WarnContext(ctx, "travel leg lookup failed, using sentinel", slog.Any("error", err))
		span.RecordError(err)
		transfer = sentinelTransfer(fromPoi.PoiID, toPoi.PoiID, mode)
	}
	c.cache.Set(key, transfer, cache.NoExpiration)
	span.SetStatus(codes.Ok, "leg computed")
	return transfer, nil
}

// CalcSequence yields len(pois)-1 transfers in order (spec.md §4.5).
func (c *HTTPCalculator) CalcSequence(ctx context.Context, pois []travelmodel.PoiRecord, mode travelmodel.TravelMode) ([]travelmodel.Transfer, error) {
	ctx, span := otel.Tracer("TravelLeg").Start(ctx, "HTTPCalculator.CalcSequence", trace.WithAttributes(
		attribute.Int("pois", len(pois)),
		attribute.String("mode", string(mode)),
	))
	defer span.End()

	if len(pois) < 2 {
		span.SetStatus(codes.Ok, "nothing to sequence")
		return nil, nil
	}

	transfers := make([]travelmodel.Transfer, 0, len(pois)-1)
	for i := 0; i < len(pois)-1; i++ {
		t, err := c.Calc(ctx, pois[i], pois[i+1], mode)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	span.SetStatus(codes.Ok, "sequence computed")
	return transfers, nil
}

func (c *HTTPCalculator) query(ctx context.Context, fromPoi, toPoi travelmodel.PoiRecord, mode travelmodel.TravelMode) (travelmodel.Transfer, error) {
	if c.apiKey == "" {
		return travelmodel.Transfer{}, fmt.Errorf("travelleg: api key not configured")
	}
	if fromPoi.Coordinates == nil || toPoi.Coordinates == nil {
		return travelmodel.Transfer{}, fmt.Errorf("travelleg: missing coordinates")
	}

	originStr := fmt.Sprintf("%f,%f", fromPoi.Coordinates.Lat, fromPoi.Coordinates.Lon)
	destStr := fmt.Sprintf("%f,%f", toPoi.Coordinates.Lat, toPoi.Coordinates.Lon)

	url := fmt.Sprintf("%s?origins=%s&destinations=%s&mode=%s&key=%s",
		c.baseURL, originStr, destStr, strings.ToLower(string(mode)), c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return travelmodel.Transfer{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return travelmodel.Transfer{}, fmt.Errorf("travelleg: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return travelmodel.Transfer{}, fmt.Errorf("travelleg: upstream status %d", resp.StatusCode)
	}

	var parsed directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return travelmodel.Transfer{}, fmt.Errorf("travelleg: malformed response: %w", err)
	}
	if len(parsed.Rows) == 0 || len(parsed.Rows[0].Elements) == 0 {
		return travelmodel.Transfer{}, fmt.Errorf("travelleg: empty response")
	}
	el := parsed.Rows[0].Elements[0]
	if el.Status != "OK" {
		return travelmodel.Transfer{}, fmt.Errorf("travelleg: element status %q", el.Status)
	}

	return travelmodel.Transfer{
		FromPoiID:       fromPoi.PoiID,
		ToPoiID:         toPoi.PoiID,
		Mode:            mode,
		DurationMinutes: el.Duration.Value / 60,
		DistanceKm:      float64(el.Distance.Value) / 1000.0,
	}, nil
}

// sentinelTransfer is returned on missing credentials or upstream error,
// per spec.md §4.5: never fail the caller.
func sentinelTransfer(fromPoiID, toPoiID string, mode travelmodel.TravelMode) travelmodel.Transfer {
	return travelmodel.Transfer{FromPoiID: fromPoiID, ToPoiID: toPoiID, Mode: mode, DurationMinutes: 0, DistanceKm: 0}
}
