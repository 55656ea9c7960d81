package placesvalidator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDerivePoiID_DeterministicOnSourceURL(t *testing.T) {
	a := DerivePoiID("https://example.com/a")
	b := DerivePoiID("https://example.com/a")
	c := DerivePoiID("https://example.com/b")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestMapCategory_PrimaryTypeMatch(t *testing.T) {
	assert.Equal(t, travelmodel.CategoryRestaurant, mapCategory("restaurant", nil))
	assert.Equal(t, travelmodel.CategoryAttraction, mapCategory("museum", nil))
	assert.Equal(t, travelmodel.CategoryAccommodation, mapCategory("hotel", nil))
}

func TestMapCategory_FallsBackToTypesScan(t *testing.T) {
	got := mapCategory("unknown_primary", []string{"point_of_interest", "cafe"})
	assert.Equal(t, travelmodel.CategoryCafe, got)
}

func TestMapCategory_DefaultsToOther(t *testing.T) {
	got := mapCategory("unknown_primary", []string{"point_of_interest"})
	assert.Equal(t, travelmodel.CategoryOther, got)
}

func TestPriceLevelOrdinal_KnownAndUnknown(t *testing.T) {
	require.NotNil(t, priceLevelOrdinal("PRICE_LEVEL_MODERATE"))
	assert.Equal(t, 2, *priceLevelOrdinal("PRICE_LEVEL_MODERATE"))
	assert.Nil(t, priceLevelOrdinal("PRICE_LEVEL_UNSPECIFIED"))
}

func TestGoogleDayToISO_SundayMapsToSeven(t *testing.T) {
	assert.Equal(t, 7, googleDayToISO(0))
	assert.Equal(t, 1, googleDayToISO(1))
	assert.Equal(t, 6, googleDayToISO(6))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestSynthesizeURL_IsDeterministicSlug(t *testing.T) {
	a := synthesizeURL("Tate Modern", "London")
	b := synthesizeURL("Tate Modern", "London")
	assert.Equal(t, a, b)
	assert.Contains(t, a, "tate-modern")
}

func TestToOpeningHours_ProducesOrderedSevenDaySequenceWithClosures(t *testing.T) {
	// Monday (day=1) only, Google-day-indexed (0=Sunday).
	raw := placeOpeningHours{
		Periods: []placePeriod{
			{
				Open:  placePeriodTime{Day: 1, Hour: 9, Min: 0},
				Close: placePeriodTime{Day: 1, Hour: 17, Min: 0},
			},
		},
	}

	oh := toOpeningHours(raw)
	require.NotNil(t, oh)
	require.Len(t, oh.Days, 7)
	for i, d := range oh.Days {
		assert.Equal(t, i+1, d.DayOfWeek)
		if i == 0 {
			assert.False(t, d.IsClosed)
			require.Len(t, d.Slots, 1)
			assert.Equal(t, "09:00", d.Slots[0].Open)
			assert.Equal(t, "17:00", d.Slots[0].Close)
			continue
		}
		assert.True(t, d.IsClosed)
		assert.Empty(t, d.Slots)
	}
}

func TestToOpeningHours_EmptyPeriodsReturnsNil(t *testing.T) {
	assert.Nil(t, toOpeningHours(placeOpeningHours{}))
}

const placesSearchOK = `{"places":[{"id":"p1","displayName":"Tate Modern","formattedAddress":"Bankside, London","primaryType":"museum","rating":4.6,"userRatingCount":1000,"location":{"latitude":51.5,"longitude":-0.1}}]}`

func TestMap_SuccessBuildsRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, placesSearchOK)
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL, "test-key", testLogger())
	rec, err := v.Map(context.Background(), MapInput{Name: "Tate Modern"}, "London", true)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Tate Modern", rec.Name)
	assert.Equal(t, travelmodel.CategoryAttraction, rec.Category)
	assert.Equal(t, "p1", rec.GooglePlaceID)
	require.NotNil(t, rec.Coordinates)
	assert.Equal(t, 51.5, rec.Coordinates.Lat)
}

func TestMap_NoMatchWithRaiseOnFailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"places":[]}`)
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL, "test-key", testLogger())
	rec, err := v.Map(context.Background(), MapInput{Name: "Nowhere"}, "London", true)
	require.Error(t, err)
	assert.Nil(t, rec)
	var validationErr *PoiValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestMap_NoMatchWithoutRaiseOnFailureReturnsNilNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"places":[]}`)
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL, "test-key", testLogger())
	rec, err := v.Map(context.Background(), MapInput{Name: "Nowhere"}, "London", false)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMapBatch_ReturnsRecordForEveryMatchedInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, placesSearchOK)
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL, "test-key", testLogger())
	inputs := []MapInput{{Name: "Tate Modern"}, {Name: "Also Tate"}}
	recs, err := v.MapBatch(context.Background(), inputs, "London")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestMap_MissingAPIKeyRaisesValidationError(t *testing.T) {
	v := NewHTTPValidator("http://unused", "", testLogger())
	_, err := v.Map(context.Background(), MapInput{Name: "Tate Modern"}, "London", true)
	require.Error(t, err)
	var validationErr *PoiValidationError
	assert.ErrorAs(t, err, &validationErr)
}
