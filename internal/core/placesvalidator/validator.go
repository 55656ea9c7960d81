// Package placesvalidator implements the candidate -> authoritative POI
// enrichment contract from spec.md §4.4: a text-search lookup against an
// external places API, stable poi_id derivation, and category normalization.
package placesvalidator

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

// batchConcurrency bounds map_batch fan-out per spec.md §4.4.
const batchConcurrency = 5

// MapInput is the unvalidated candidate summary fed to map/map_batch.
type MapInput struct {
	Name      string
	SourceURL string
}

// PoiValidationError signals a lookup that exhausted both the city-qualified
// and fallback queries with raise_on_failure=true.
type PoiValidationError struct {
	Name string
	Err  error
}

func (e *PoiValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("placesvalidator: could not validate %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("placesvalidator: no match for %q", e.Name)
}
func (e *PoiValidationError) Unwrap() error { return e.Err }

// Validator is the contract consumed by the POI Orchestrator.
type Validator interface {
	Map(ctx context.Context, input MapInput, city string, raiseOnFailure bool) (*travelmodel.PoiRecord, error)
	MapBatch(ctx context.Context, inputs []MapInput, city string) ([]travelmodel.PoiRecord, error)
}

// placeHit is the subset of an external text-search result this package
// consumes; field names mirror the Google Places "searchText" response
// shape, the only widely-deployed text-search API shape in this domain.
type placeHit struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"displayName"`
	FormattedAddr   string   `json:"formattedAddress"`
	PrimaryType     string   `json:"primaryType"`
	Types           []string `json:"types"`
	Rating          *float64 `json:"rating"`
	UserRatingCount *int     `json:"userRatingCount"`
	PriceLevel      string   `json:"priceLevel"`
	Location        *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	RegularOpeningHours *placeOpeningHours `json:"regularOpeningHours"`
}

// placePeriodTime is a Google Places "day of week + time of day" pair, used
// for both the open and close edge of a period.
type placePeriodTime struct {
	Day  int `json:"day"`
	Hour int `json:"hour"`
	Min  int `json:"minute"`
}

type placePeriod struct {
	Open  placePeriodTime `json:"open"`
	Close placePeriodTime `json:"close"`
}

type placeOpeningHours struct {
	Periods []placePeriod `json:"periods"`
}

type textSearchResponse struct {
	Places []placeHit `json:"places"`
}

// HTTPValidator calls an external text-search places API (Google
// Places-shaped). A missing API key is still a hard PoiValidationError on
// explicit lookup, since spec.md §4.4 does not list "missing credentials"
// as a degrade-to-empty case the way §4.3/§4.5 do.
type HTTPValidator struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
	sem     *semaphore.Weighted
}

// NewHTTPValidator builds a validator against baseURL.
func NewHTTPValidator(baseURL, apiKey string, logger *slog.Logger) *HTTPValidator {
	if baseURL == "" {
		baseURL = "https://places.googleapis.com/v1/places:searchText"
	}
	return &HTTPValidator{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
		sem:     semaphore.NewWeighted(batchConcurrency),
	}
}

var _ Validator = (*HTTPValidator)(nil)

func (v *HTTPValidator) Map(ctx context.Context, input MapInput, city string, raiseOnFailure bool) (*travelmodel.PoiRecord, error) {
	ctx, span := otel.Tracer("PlacesValidator").Start(ctx, "HTTPValidator.Map", trace.WithAttributes(
		attribute.String("name", input.Name),
		attribute.String("city", city),
	))
	defer span.End()

	hit, err := v.textSearch(ctx, fmt.Sprintf("%s %s", input.Name, city))
	if err != nil {
		span.RecordError(err)
	}
	if hit == nil {
		// Fallback: retry with the bare name, per spec.md §4.4.
		hit, err = v.textSearch(ctx, input.Name)
		if err != nil {
			span.RecordError(err)
		}
	}
	if hit == nil {
		span.SetStatus(codes.Ok, "no match")
		if raiseOnFailure {
			return nil, &PoiValidationError{Name: input.Name}
		}
		return nil, nil
	}

	record := v.toRecord(*hit, input, city)
	span.SetAttributes(attribute.String("poi_id", record.PoiID))
	span.SetStatus(codes.Ok, "matched")
	return &record, nil
}

// MapBatch runs Map over all inputs with a concurrency-5 semaphore
// (spec.md §4.4). A single failed lookup never aborts the batch: inputs
// that fail to validate are simply omitted from the result.
func (v *HTTPValidator) MapBatch(ctx context.Context, inputs []MapInput, city string) ([]travelmodel.PoiRecord, error) {
	ctx, span := otel.Tracer("PlacesValidator").Start(ctx, "HTTPValidator.MapBatch", trace.WithAttributes(
		attribute.Int("inputs", len(inputs)),
		attribute.String("city", city),
	))
	defer span.End()

	results := make([]*travelmodel.PoiRecord, len(inputs))
	errs := make([]error, len(inputs))

	var wg sync.WaitGroup
	for i, input := range inputs {
		if err := v.sem.Acquire(ctx, 1); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "acquire cancelled")
			return nil, err
		}
		wg.Add(1)
		i, input := i, input
		go func() {
			defer wg.Done()
			defer v.sem.Release(1)
			rec, err := v.Map(ctx, input, city, false)
			results[i] = rec
			errs[i] = err
		}()
	}
	wg.Wait()

	out := make([]travelmodel.PoiRecord, 0, len(inputs))
	for i, rec := range results {
		if errs[i] != nil {
			v.logger.WarnContext(ctx, "map_batch: lookup failed, omitting", slog.String("name", inputs[i].Name), slog.Any("error", errs[i]))
			continue
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	span.SetAttributes(attribute.Int("validated", len(out)))
	span.SetStatus(codes.Ok, "batch completed")
	return out, nil
}

func (v *HTTPValidator) textSearch(ctx context.Context, query string) (*placeHit, error) {
	if v.apiKey == "" {
		return nil, fmt.Errorf("placesvalidator: api key not configured")
	}

	body, err := json.Marshal(map[string]string{"textQuery": query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", v.apiKey)
	req.Header.Set("X-Goog-FieldMask", "places.id,places.displayName,places.formattedAddress,places.primaryType,"+
		"places.types,places.rating,places.userRatingCount,places.priceLevel,places.location,places.regularOpeningHours")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("placesvalidator: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("placesvalidator: upstream status %d", resp.StatusCode)
	}

	var parsed textSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("placesvalidator: malformed response: %w", err)
	}
	if len(parsed.Places) == 0 {
		return nil, nil
	}
	return &parsed.Places[0], nil
}

func (v *HTTPValidator) toRecord(hit placeHit, input MapInput, city string) travelmodel.PoiRecord {
	sourceURL := input.SourceURL
	if sourceURL == "" {
		sourceURL = synthesizeURL(input.Name, city)
	}

	rec := travelmodel.PoiRecord{
		PoiID:         DerivePoiID(sourceURL),
		Name:          firstNonEmpty(hit.DisplayName, input.Name),
		Category:      mapCategory(hit.PrimaryType, hit.Types),
		Description:   hit.FormattedAddr,
		Address:       hit.FormattedAddr,
		City:          city,
		GooglePlaceID: hit.ID,
		Rating:        hit.Rating,
		RatingCount:   hit.UserRatingCount,
		PriceLevel:    priceLevelOrdinal(hit.PriceLevel),
		Types:         hit.Types,
		Source:        travelmodel.SourceWeb,
		CreatedAt:     time.Now().UTC(),
	}
	rec.RawText = buildRawText(rec)

	if hit.Location != nil {
		rec.Coordinates = &travelmodel.Coordinates{Lat: hit.Location.Latitude, Lon: hit.Location.Longitude}
	}
	if hit.RegularOpeningHours != nil {
		rec.OpeningHours = toOpeningHours(*hit.RegularOpeningHours)
	}
	return rec
}

// categoryTable maps Google Places v1 primaryType values to the closed
// category set from spec.md §4.4. Anything absent falls through to a
// types-keyword scan, then to CategoryOther.
var categoryTable = map[string]travelmodel.Category{
	"restaurant":    travelmodel.CategoryRestaurant,
	"meal_takeaway": travelmodel.CategoryRestaurant,
	"meal_delivery": travelmodel.CategoryRestaurant,
	"bar":           travelmodel.CategoryRestaurant,
	"cafe":          travelmodel.CategoryCafe,
	"bakery":        travelmodel.CategoryCafe,
	"coffee_shop":   travelmodel.CategoryCafe,

	"tourist_attraction": travelmodel.CategoryAttraction,
	"museum":             travelmodel.CategoryAttraction,
	"art_gallery":        travelmodel.CategoryAttraction,
	"park":               travelmodel.CategoryAttraction,
	"landmark":           travelmodel.CategoryAttraction,
	"church":             travelmodel.CategoryAttraction,
	"hindu_temple":       travelmodel.CategoryAttraction,
	"mosque":             travelmodel.CategoryAttraction,
	"synagogue":          travelmodel.CategoryAttraction,

	"lodging":     travelmodel.CategoryAccommodation,
	"hotel":       travelmodel.CategoryAccommodation,
	"hostel":      travelmodel.CategoryAccommodation,
	"guest_house": travelmodel.CategoryAccommodation,

	"shopping_mall":  travelmodel.CategoryShopping,
	"clothing_store": travelmodel.CategoryShopping,
	"market":         travelmodel.CategoryShopping,
	"store":          travelmodel.CategoryShopping,

	"night_club":                 travelmodel.CategoryEntertainment,
	"movie_theater":              travelmodel.CategoryEntertainment,
	"amusement_park":             travelmodel.CategoryEntertainment,
	"casino":                     travelmodel.CategoryEntertainment,
	"tourist_information_center": travelmodel.CategoryEntertainment,
}

// mapCategory implements spec.md §4.4's category table: primaryType first,
// then a scan over the broader types list, defaulting to CategoryOther.
func mapCategory(primaryType string, types []string) travelmodel.Category {
	if cat, ok := categoryTable[primaryType]; ok {
		return cat
	}
	for _, t := range types {
		if cat, ok := categoryTable[t]; ok {
			return cat
		}
	}
	return travelmodel.CategoryOther
}

// DerivePoiID implements spec.md §4.4: poi_id = MD5(source_url), 32-hex.
func DerivePoiID(sourceURL string) string {
	sum := md5.Sum([]byte(sourceURL))
	return hex.EncodeToString(sum[:])
}

// synthesizeURL builds a deterministic stand-in URL when no source_url is
// available, so DerivePoiID stays a pure function of (name, city).
func synthesizeURL(name, city string) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name+" "+city), " ", "-"))
	return "urn:poi:" + slug
}

func buildRawText(rec travelmodel.PoiRecord) string {
	parts := []string{rec.Name, string(rec.Category)}
	if rec.Address != "" {
		parts = append(parts, rec.Address)
	}
	if rec.City != "" {
		parts = append(parts, rec.City)
	}
	return strings.Join(parts, ". ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func priceLevelOrdinal(level string) *int {
	table := map[string]int{
		"PRICE_LEVEL_FREE":           0,
		"PRICE_LEVEL_INEXPENSIVE":    1,
		"PRICE_LEVEL_MODERATE":       2,
		"PRICE_LEVEL_EXPENSIVE":      3,
		"PRICE_LEVEL_VERY_EXPENSIVE": 4,
	}
	if n, ok := table[level]; ok {
		return &n
	}
	return nil
}

// googleDayToISO converts the Places API's day index (0=Sunday..6=Saturday)
// to ISO-8601 (Monday=1..Sunday=7), matching travelmodel.DayEntry.DayOfWeek.
func googleDayToISO(day int) int {
	if day == 0 {
		return 7
	}
	return day
}

// toOpeningHours converts the Places API's sparse periods list into spec
// §3's ordered 7-day schedule: every ISO weekday appears exactly once, with
// IsClosed=true for any day absent from periods. A period with an
// out-of-range Open.Day is skipped (malformed upstream data).
func toOpeningHours(raw placeOpeningHours) *travelmodel.OpeningHours {
	if len(raw.Periods) == 0 {
		return nil
	}

	slotsByISODay := make(map[int][]travelmodel.TimeSlot)
	for _, p := range raw.Periods {
		if p.Open.Day < 0 || p.Open.Day > 6 {
			continue
		}
		isoDay := googleDayToISO(p.Open.Day)
		slotsByISODay[isoDay] = append(slotsByISODay[isoDay], travelmodel.TimeSlot{
			Open:  fmt.Sprintf("%02d:%02d", p.Open.Hour, p.Open.Min),
			Close: fmt.Sprintf("%02d:%02d", p.Close.Hour, p.Close.Min),
		})
	}

	oh := &travelmodel.OpeningHours{Days: make([]travelmodel.DayEntry, 7)}
	for day := 1; day <= 7; day++ {
		slots, ok := slotsByISODay[day]
		oh.Days[day-1] = travelmodel.DayEntry{
			DayOfWeek: day,
			IsClosed:  !ok,
			Slots:     slots,
		}
	}
	return oh
}
