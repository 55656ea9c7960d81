package travelmodel

// TravelMode identifies the mode of transport for a Transfer.
type TravelMode string

const (
	ModeDriving   TravelMode = "driving"
	ModeWalking   TravelMode = "walking"
	ModeTransit   TravelMode = "transit"
	ModeBicycling TravelMode = "bicycling"
)

// Transfer is a directed edge between two consecutive POIs in a day.
type Transfer struct {
	FromPoiID       string
	ToPoiID         string
	Mode            TravelMode
	DurationMinutes int
	DistanceKm      float64
}

// DayItinerary is one day's ordered POI visits and the transfers between
// them. Invariant: len(Transfers) == len(Pois) - 1, and transfers align
// with consecutive POI pairs in order.
type DayItinerary struct {
	Date                 string // YYYY-MM-DD
	Pois                 []PoiRecord
	Transfers            []Transfer
	TotalDurationMinutes int
}
