package itinorchestrator

import "github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"

// visitMinutes is the fixed per-category table from spec.md §4.7.
var visitMinutes = map[travelmodel.Category]int{
	travelmodel.CategoryRestaurant:    60,
	travelmodel.CategoryCafe:          45,
	travelmodel.CategoryAttraction:    90,
	travelmodel.CategoryAccommodation: 0,
	travelmodel.CategoryShopping:      60,
	travelmodel.CategoryEntertainment: 90,
	travelmodel.CategoryOther:         60,
}

// estimatedVisitTime returns the fixed visit duration for a category,
// defaulting to the "other" bucket for anything unrecognized.
func estimatedVisitTime(cat travelmodel.Category) int {
	if m, ok := visitMinutes[cat]; ok {
		return m
	}
	return visitMinutes[travelmodel.CategoryOther]
}

// visitCost is the category->cost table used by validate's budget check.
// Not named explicitly in spec.md's defaults table, so it is a conservative
// flat estimate per category tier rather than a fabricated per-city price.
var visitCost = map[travelmodel.Category]float64{
	travelmodel.CategoryRestaurant:    25,
	travelmodel.CategoryCafe:          10,
	travelmodel.CategoryAttraction:    20,
	travelmodel.CategoryAccommodation: 0,
	travelmodel.CategoryShopping:      0,
	travelmodel.CategoryEntertainment: 30,
	travelmodel.CategoryOther:         15,
}

func estimatedVisitCost(cat travelmodel.Category) float64 {
	if c, ok := visitCost[cat]; ok {
		return c
	}
	return visitCost[travelmodel.CategoryOther]
}

// computePenalty implements spec.md §4.7's best-so-far scoring: a
// non-negative sum of daily-duration overages, any budget overage, and 10
// per POI that a day has above MaxPoiCount or below MinPoiCount.
func computePenalty(itineraries []travelmodel.DayItinerary, cfg Config, totalBudget float64) float64 {
	var penalty float64
	var totalCost float64

	dayCounts := make([]int, len(itineraries))
	for i, day := range itineraries {
		dayCounts[i] = len(day.Pois)
		if over := day.TotalDurationMinutes - cfg.MaxDailyMinutes; over > 0 {
			penalty += float64(over)
		}
		for _, poi := range day.Pois {
			totalCost += estimatedVisitCost(poi.Category)
		}
	}

	if totalBudget > 0 {
		if over := totalCost - totalBudget; over > 0 {
			penalty += over
		}
	}

	for _, n := range dayCounts {
		if over := n - cfg.MaxPoiCount; over > 0 {
			penalty += float64(over) * 10
		}
		if under := cfg.MinPoiCount - n; under > 0 {
			penalty += float64(under) * 10
		}
	}

	return penalty
}
