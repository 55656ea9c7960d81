package planstate

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/FACorreiaa/go-poi-au-suggestions/internal/travelmodel"
)

// TaskName is one unit of work in the itinerary orchestrator's FIFO task
// queue (spec.md §4.7).
type TaskName string

const (
	TaskPlan         TaskName = "plan"
	TaskLegs         TaskName = "legs"
	TaskValidate     TaskName = "validate"
	TaskBalance      TaskName = "balance"
	TaskBalanceApply TaskName = "balance_apply"
)

// ItinState is the Itinerary Orchestrator's working state.
type ItinState struct {
	// Inputs
	Pois        []travelmodel.PoiRecord
	Destination string
	StartDate   string
	EndDate     string
	Budget      float64
	Persona     string

	// Working
	Itineraries        []travelmodel.DayItinerary
	ValidationFeedback string
	ScheduleFeedback   string
	IterationCount     int
	PreviousPoiIDsHash string
	PoiEnrichAttempts  int
	IsPoiSufficient    bool
	IsPoiChanged       bool

	// PoiSummaries caches the LLM-produced per-POI artefact (spec.md §3's
	// PoiSummary) consumed only by plan/refine prompts, keyed by poi_id.
	// Computed once per Plan call, not per iteration.
	PoiSummaries map[string]travelmodel.PoiSummary

	// Control
	TaskQueue   []TaskName
	CurrentTask TaskName

	// Fallback
	BestItineraries []travelmodel.DayItinerary
	BestPenalty     float64
	HasBest         bool

	// Diagnostics: per-iteration penalty trace, so callers can verify
	// invariant 3 (best_penalty < initial_penalty on fallback) directly
	// instead of re-deriving it (SUPPLEMENTED FEATURES in SPEC_FULL.md).
	PenaltyTrace []float64
}

// NewItinState builds the orchestrator's starting state from a planning
// request.
func NewItinState(pois []travelmodel.PoiRecord, destination, startDate, endDate string, budget float64, persona string) *ItinState {
	return &ItinState{
		Pois:        pois,
		Destination: destination,
		StartDate:   startDate,
		EndDate:     endDate,
		Budget:      budget,
		Persona:     persona,
		BestPenalty: -1, // sentinel: no attempt recorded yet
	}
}

// HashPoiIDs computes the change-detection hash from spec.md §4.7: the
// sorted set of input POI IDs, hashed with MD5. Used before every `plan` to
// set IsPoiChanged.
func HashPoiIDs(pois []travelmodel.PoiRecord) string {
	ids := make([]string, 0, len(pois))
	for _, p := range pois {
		ids = append(ids, p.PoiID)
	}
	sort.Strings(ids)
	sum := md5.Sum([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])
}

// DetectPoiChange hashes the current POI set and compares it against the
// previous hash, updating IsPoiChanged and PreviousPoiIDsHash.
func (s *ItinState) DetectPoiChange() {
	hash := HashPoiIDs(s.Pois)
	s.IsPoiChanged = hash != s.PreviousPoiIDsHash
	s.PreviousPoiIDsHash = hash
}

// PushTasks appends tasks to the FIFO queue.
func (s *ItinState) PushTasks(tasks ...TaskName) {
	s.TaskQueue = append(s.TaskQueue, tasks...)
}

// PopTask removes and returns the head of the FIFO queue.
func (s *ItinState) PopTask() (TaskName, bool) {
	if len(s.TaskQueue) == 0 {
		return "", false
	}
	t := s.TaskQueue[0]
	s.TaskQueue = s.TaskQueue[1:]
	return t, true
}

// ClearQueue empties the task queue, e.g. when a task demands regeneration.
func (s *ItinState) ClearQueue() {
	s.TaskQueue = nil
}

// RecordAttempt implements the best-so-far tracking from spec.md §4.7: if
// penalty improves on the best seen so far, snapshot the current
// itineraries as the new best.
func (s *ItinState) RecordAttempt(penalty float64) {
	s.PenaltyTrace = append(s.PenaltyTrace, penalty)
	if !s.HasBest || penalty < s.BestPenalty {
		s.BestPenalty = penalty
		s.HasBest = true
		snapshot := make([]travelmodel.DayItinerary, len(s.Itineraries))
		copy(snapshot, s.Itineraries)
		s.BestItineraries = snapshot
	}
}

// InitialPenalty returns the first recorded penalty, or -1 if none was
// recorded yet. Used by tests to check invariant 3's fallback clause.
func (s *ItinState) InitialPenalty() float64 {
	if len(s.PenaltyTrace) == 0 {
		return -1
	}
	return s.PenaltyTrace[0]
}
