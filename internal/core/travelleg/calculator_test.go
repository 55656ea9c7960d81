package travelleg

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func poiAt(id string, lat, lon float64) travelmodel.PoiRecord {
	return travelmodel.PoiRecord{PoiID: id, Coordinates: &travelmodel.Coordinates{Lat: lat, Lon: lon}}
}

const distanceMatrixOK = `{"rows":[{"elements":[{"status":"OK","duration":{"value":600},"distance":{"value":1200}}]}]}`

func TestCalc_SuccessParsesDurationAndDistance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, distanceMatrixOK)
	}))
	defer srv.Close()

	c := NewHTTPCalculator(srv.URL, "test-key", testLogger())
	transfer, err := c.Calc(context.Background(), poiAt("a", 1, 1), poiAt("b", 2, 2), travelmodel.ModeDriving)
	require.NoError(t, err)
	assert.Equal(t, 10, transfer.DurationMinutes)
	assert.Equal(t, 1.2, transfer.DistanceKm)
	assert.Equal(t, "a", transfer.FromPoiID)
	assert.Equal(t, "b", transfer.ToPoiID)
}

func TestCalc_MissingAPIKeyReturnsSentinel(t *testing.T) {
	c := NewHTTPCalculator("http://unused", "", testLogger())
	transfer, err := c.Calc(context.Background(), poiAt("a", 1, 1), poiAt("b", 2, 2), travelmodel.ModeDriving)
	require.NoError(t, err)
	assert.Equal(t, 0, transfer.DurationMinutes)
	assert.Equal(t, 0.0, transfer.DistanceKm)
}

func TestCalc_UpstreamErrorReturnsSentinelNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPCalculator(srv.URL, "test-key", testLogger())
	transfer, err := c.Calc(context.Background(), poiAt("a", 1, 1), poiAt("b", 2, 2), travelmodel.ModeDriving)
	require.NoError(t, err)
	assert.Equal(t, 0, transfer.DurationMinutes)
}

func TestCalc_MissingCoordinatesReturnsSentinel(t *testing.T) {
	c := NewHTTPCalculator("http://unused", "test-key", testLogger())
	transfer, err := c.Calc(context.Background(), travelmodel.PoiRecord{PoiID: "a"}, poiAt("b", 2, 2), travelmodel.ModeDriving)
	require.NoError(t, err)
	assert.Equal(t, travelmodel.Transfer{FromPoiID: "a", ToPoiID: "b", Mode: travelmodel.ModeDriving}, transfer)
}

func TestCalc_MemoizesRepeatedLookups(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, distanceMatrixOK)
	}))
	defer srv.Close()

	c := NewHTTPCalculator(srv.URL, "test-key", testLogger())
	_, err := c.Calc(context.Background(), poiAt("a", 1, 1), poiAt("b", 2, 2), travelmodel.ModeDriving)
	require.NoError(t, err)
	_, err = c.Calc(context.Background(), poiAt("a", 1, 1), poiAt("b", 2, 2), travelmodel.ModeDriving)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCalcSequence_FewerThanTwoPoisReturnsNil(t *testing.T) {
	c := NewHTTPCalculator("http://unused", "test-key", testLogger())
	transfers, err := c.CalcSequence(context.Background(), []travelmodel.PoiRecord{poiAt("a", 1, 1)}, travelmodel.ModeDriving)
	require.NoError(t, err)
	assert.Nil(t, transfers)
}

func TestCalcSequence_ProducesOneFewerTransferThanPois(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, distanceMatrixOK)
	}))
	defer srv.Close()

	c := NewHTTPCalculator(srv.URL, "test-key", testLogger())
	pois := []travelmodel.PoiRecord{poiAt("a", 1, 1), poiAt("b", 2, 2), poiAt("c", 3, 3)}
	transfers, err := c.CalcSequence(context.Background(), pois, travelmodel.ModeDriving)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	assert.Equal(t, "a", transfers[0].FromPoiID)
	assert.Equal(t, "b", transfers[0].ToPoiID)
	assert.Equal(t, "b", transfers[1].FromPoiID)
	assert.Equal(t, "c", transfers[1].ToPoiID)
}
