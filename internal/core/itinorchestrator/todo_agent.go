package itinorchestrator

import (
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/planstate"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

// TodoAgent is the rule-based (no LLM) task-queue populator from spec.md
// §4.7 step 2. It inspects state and appends the next batch of FIFO tasks;
// an empty result means the refinement loop is done.
func TodoAgent(state *planstate.ItinState) []planstate.TaskName {
	if len(state.Itineraries) == 0 {
		return []planstate.TaskName{planstate.TaskPlan}
	}

	if anyDayMissingTransfers(state.Itineraries) || state.IsPoiChanged {
		return []planstate.TaskName{planstate.TaskLegs, planstate.TaskValidate, planstate.TaskBalance}
	}

	if state.ValidationFeedback != "" {
		return []planstate.TaskName{planstate.TaskPlan}
	}

	if state.ScheduleFeedback != "" {
		return []planstate.TaskName{planstate.TaskBalanceApply, planstate.TaskValidate}
	}

	return nil
}

func anyDayMissingTransfers(days []travelmodel.DayItinerary) bool {
	for _, d := range days {
		if len(d.Pois) > 1 && len(d.Transfers) == 0 {
			return true
		}
	}
	return false
}
