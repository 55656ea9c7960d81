// Package travelmodel holds the value types shared by the POI discovery and
// itinerary planning pipelines: candidates, validated records, transfers and
// day plans. Types live together, sibling-to-sibling, so none of them need
// to import another package in this module to reference each other.
package travelmodel

import "time"

// Category is the normalized POI category used across discovery and planning.
type Category string

const (
	CategoryRestaurant    Category = "restaurant"
	CategoryCafe          Category = "cafe"
	CategoryAttraction    Category = "attraction"
	CategoryAccommodation Category = "accommodation"
	CategoryShopping      Category = "shopping"
	CategoryEntertainment Category = "entertainment"
	CategoryOther         Category = "other"
)

// Source identifies where a candidate or record originated.
type Source string

const (
	SourceWeb      Source = "web"
	SourceVector   Source = "vector"
	SourceFeedback Source = "feedback"
)

// PoiCandidate is an unvalidated hit surfaced by web search or vector
// retrieval, before it has gone through the Places Validator.
type PoiCandidate struct {
	Title      string
	Snippet    string
	SourceURL  string
	Source     Source
	Relevance  float64
	PoiID      string // set for vector hits, and for web hits once validated
}

// TimeSlot is a half-open opening interval within a single day.
type TimeSlot struct {
	Open  string // "HH:MM"
	Close string // "HH:MM"
}

// DayEntry is one day's opening schedule. DayOfWeek follows ISO-8601
// (Monday=1 .. Sunday=7).
type DayEntry struct {
	DayOfWeek int
	IsClosed  bool
	Slots     []TimeSlot
}

// OpeningHours is the ordered 7-day opening schedule of a POI.
type OpeningHours struct {
	Days []DayEntry
}

// Coordinates is a WGS84 lat/lon pair.
type Coordinates struct {
	Lat float64
	Lon float64
}

// PoiRecord is the authoritative, validated POI. PoiID is a function of
// SourceURL alone (see placesvalidator.DerivePoiID) so re-validating the
// same URL always yields the same record identity.
type PoiRecord struct {
	PoiID         string
	Name          string
	Category      Category
	Description   string
	Address       string
	City          string
	Coordinates   *Coordinates
	GooglePlaceID string
	Rating        *float64
	RatingCount   *int
	PriceLevel    *int
	OpeningHours  *OpeningHours
	RawText       string // embedding source string
	Types         []string
	Source        Source
	CreatedAt     time.Time
}

// PoiSummary is an LLM-produced per-POI artefact consumed only by the
// itinerary planner; it is never returned across the POI Orchestrator's
// external boundary (spec.md §9 open question).
type PoiSummary struct {
	PoiID      string
	Name       string
	Category   Category
	Summary    string
	Highlights []string
}
