package itinorchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/planstate"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

// runLegs implements spec.md §4.7's "legs" task: for each day, compute the
// transfer sequence and the day's total duration.
func (o *Orchestrator) runLegs(ctx context.Context, state *planstate.ItinState) error {
	ctx, span := otel.Tracer("ItinOrchestrator").Start(ctx, "task:legs")
	defer span.End()

	for i := range state.Itineraries {
		day := &state.Itineraries[i]
		transfers, err := o.legs.CalcSequence(ctx, day.Pois, travelmodel.ModeDriving)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("legs: day %s: %w", day.Date, err)
		}
		day.Transfers = transfers

		total := 0
		for _, t := range transfers {
			total += t.DurationMinutes
		}
		for _, poi := range day.Pois {
			total += estimatedVisitTime(poi.Category)
		}
		day.TotalDurationMinutes = total
	}
	span.SetStatus(codes.Ok, "legs computed")
	return nil
}

// runValidate implements spec.md §4.7's "validate" task: daily duration,
// budget, and date-range checks, yielding a textual feedback string on any
// failure or empty string on success.
func (o *Orchestrator) runValidate(ctx context.Context, state *planstate.ItinState) string {
	_, span := otel.Tracer("ItinOrchestrator").Start(ctx, "task:validate")
	defer span.End()

	startDate, errStart := time.Parse("2006-01-02", state.StartDate)
	endDate, errEnd := time.Parse("2006-01-02", state.EndDate)

	for _, day := range state.Itineraries {
		if over := day.TotalDurationMinutes - o.cfg.MaxDailyMinutes; over > 0 {
			feedback := fmt.Sprintf("day %s runs %d minutes over the %d-minute daily limit; remove or shorten a visit", day.Date, over, o.cfg.MaxDailyMinutes)
			span.SetStatus(codes.Ok, "validation failed: daily limit")
			return feedback
		}
		if errStart == nil && errEnd == nil {
			d, err := time.Parse("2006-01-02", day.Date)
			if err != nil || d.Before(startDate) || d.After(endDate) {
				feedback := fmt.Sprintf("day %s falls outside the requested range %s to %s; reassign its POIs", day.Date, state.StartDate, state.EndDate)
				span.SetStatus(codes.Ok, "validation failed: date range")
				return feedback
			}
		}
	}

	if state.Budget > 0 {
		var totalCost float64
		for _, day := range state.Itineraries {
			for _, poi := range day.Pois {
				totalCost += estimatedVisitCost(poi.Category)
			}
		}
		if over := totalCost - state.Budget; over > 0 {
			feedback := fmt.Sprintf("estimated cost exceeds budget by %.2f; drop or substitute a higher-cost POI", over)
			span.SetStatus(codes.Ok, "validation failed: budget")
			return feedback
		}
	}

	span.SetStatus(codes.Ok, "validation passed")
	return ""
}

// runBalance implements spec.md §4.7's "balance" task: per-day POI count
// checks against min/max/optimal thresholds.
func (o *Orchestrator) runBalance(ctx context.Context, state *planstate.ItinState) string {
	_, span := otel.Tracer("ItinOrchestrator").Start(ctx, "task:balance")
	defer span.End()

	var overIdx, underIdx = -1, -1
	for i, day := range state.Itineraries {
		n := len(day.Pois)
		if n > o.cfg.MaxPoiCount {
			overIdx = i
		}
		if n < o.cfg.MinPoiCount {
			underIdx = i
		}
	}

	if overIdx >= 0 {
		feedback := fmt.Sprintf("day %s has more than %d POIs; move the lowest-relevance ones to a lighter day", state.Itineraries[overIdx].Date, o.cfg.MaxPoiCount)
		span.SetStatus(codes.Ok, "balance failed: overloaded day")
		return feedback
	}

	if underIdx >= 0 {
		for _, day := range state.Itineraries {
			if len(day.Pois) > o.cfg.OptimalPoiCount {
				feedback := fmt.Sprintf("day %s has fewer than %d POIs while day %s is over the optimal %d; move a POI over",
					state.Itineraries[underIdx].Date, o.cfg.MinPoiCount, day.Date, o.cfg.OptimalPoiCount)
				span.SetStatus(codes.Ok, "balance failed: uneven distribution")
				return feedback
			}
		}
	}

	span.SetStatus(codes.Ok, "balance passed")
	return ""
}

// applyBalance implements the "balance_apply" task referenced in spec.md
// §4.7's task table: it mechanically moves the lowest-relevance POI from an
// overloaded/over-optimal day to the lightest other day, recomputes legs for
// both affected days, and clears schedule_feedback so the next validate/
// balance pass re-checks the new distribution instead of spinning forever.
func (o *Orchestrator) applyBalance(ctx context.Context, state *planstate.ItinState) error {
	ctx, span := otel.Tracer("ItinOrchestrator").Start(ctx, "task:balance_apply")
	defer span.End()

	if state.ScheduleFeedback == "" {
		span.SetStatus(codes.Ok, "no feedback to apply")
		return nil
	}
	o.logger.InfoContext(ctx, "applying schedule feedback", slog.String("feedback", state.ScheduleFeedback))
	span.SetAttributes(attribute.String("feedback", state.ScheduleFeedback))

	from, to := pickRebalancePair(state.Itineraries, o.cfg)
	if from < 0 {
		// No day pair can be mechanically rebalanced (e.g. a single-day
		// trip); clear the feedback rather than loop forever on a condition
		// this task cannot fix.
		state.ScheduleFeedback = ""
		span.SetStatus(codes.Ok, "no rebalanceable day pair; cleared")
		return nil
	}

	moveLowestRelevancePoi(&state.Itineraries[from], &state.Itineraries[to])

	for _, idx := range [2]int{from, to} {
		day := &state.Itineraries[idx]
		transfers, err := o.legs.CalcSequence(ctx, day.Pois, travelmodel.ModeDriving)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("balance_apply: day %s: %w", day.Date, err)
		}
		day.Transfers = transfers

		total := 0
		for _, t := range transfers {
			total += t.DurationMinutes
		}
		for _, poi := range day.Pois {
			total += estimatedVisitTime(poi.Category)
		}
		day.TotalDurationMinutes = total
	}

	state.ScheduleFeedback = ""
	span.SetStatus(codes.Ok, "rebalanced and cleared")
	return nil
}

// pickRebalancePair returns the index of the first overloaded day (or, if
// none, the first over-optimal day) and the index of the lightest remaining
// day to move a POI into, or -1, -1 when there are fewer than two days or no
// day qualifies as a source. Unlike runBalance, it does not require an
// underfilled day before picking an over-optimal source.
func pickRebalancePair(days []travelmodel.DayItinerary, cfg Config) (from, to int) {
	if len(days) < 2 {
		return -1, -1
	}

	overIdx := -1
	for i, day := range days {
		if len(day.Pois) > cfg.MaxPoiCount {
			overIdx = i
			break
		}
	}
	if overIdx < 0 {
		for i, day := range days {
			if len(day.Pois) > cfg.OptimalPoiCount {
				overIdx = i
				break
			}
		}
	}
	if overIdx < 0 || len(days[overIdx].Pois) == 0 {
		return -1, -1
	}

	lightIdx := -1
	for i, day := range days {
		if i == overIdx {
			continue
		}
		if lightIdx < 0 || len(day.Pois) < len(days[lightIdx].Pois) {
			lightIdx = i
		}
	}
	if lightIdx < 0 {
		return -1, -1
	}
	return overIdx, lightIdx
}

// moveLowestRelevancePoi moves the lowest-rated POI (a nil rating counts as
// lowest) from the source day to the target day, per runBalance's own
// feedback text ("move the lowest-relevance ones to a lighter day").
func moveLowestRelevancePoi(from, to *travelmodel.DayItinerary) {
	if len(from.Pois) == 0 {
		return
	}
	lowest := 0
	for i, p := range from.Pois {
		if relevance(p) < relevance(from.Pois[lowest]) {
			lowest = i
		}
	}
	moved := from.Pois[lowest]
	from.Pois = append(from.Pois[:lowest], from.Pois[lowest+1:]...)
	to.Pois = append(to.Pois, moved)
}

func relevance(p travelmodel.PoiRecord) float64 {
	if p.Rating == nil {
		return -1
	}
	return *p.Rating
}
