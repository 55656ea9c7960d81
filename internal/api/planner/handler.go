// Package planner exposes the itinerary-planning pipeline over HTTP.
// Grounded on internal/api/city's handler idiom: span-per-request,
// l.InfoContext/ErrorContext, manual json.Encode/Decode.
package planner

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/go-poi-au-suggestions/app/observability/metrics"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/itinorchestrator"
)

// Handler serves POST /plan.
type Handler struct {
	logger *slog.Logger
	itin   *itinorchestrator.Orchestrator
}

func NewHandler(itin *itinorchestrator.Orchestrator, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, itin: itin}
}

type planRequestBody struct {
	Destination string  `json:"destination"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	Budget      float64 `json:"budget"`
	Persona     string  `json:"persona"`
}

// Plan handles POST /plan: builds a travel itinerary for the given
// destination/date-range/budget/persona, discovering POIs as needed.
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("PlannerHandler").Start(r.Context(), "Plan")
	defer span.End()

	l := h.logger.With(slog.String("method", "Plan"))

	if r.Method != http.MethodPost {
		span.SetStatus(codes.Error, "method not allowed")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body planRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		l.WarnContext(ctx, "failed to decode request body", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad request")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Destination == "" || body.StartDate == "" || body.EndDate == "" {
		http.Error(w, "destination, start_date and end_date are required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	m := metrics.Get()
	m.PlanRequestsTotal.Add(ctx, 1)

	result, err := h.itin.Plan(ctx, itinorchestrator.PlanRequest{
		Destination: body.Destination,
		StartDate:   body.StartDate,
		EndDate:     body.EndDate,
		Budget:      body.Budget,
		Persona:     body.Persona,
	})
	m.PlanDurationSeconds.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		var coreErr *itinorchestrator.CoreUnavailableError
		if errors.As(err, &coreErr) {
			l.ErrorContext(ctx, "core unavailable", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "core unavailable")
			http.Error(w, "planning service temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		l.ErrorContext(ctx, "plan failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan failed")
		http.Error(w, "failed to build itinerary", http.StatusInternalServerError)
		return
	}

	m.PlanIterationsUsed.Record(ctx, int64(result.IterationsUsed))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		l.ErrorContext(ctx, "failed to encode response", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "json encoding failed")
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	l.InfoContext(ctx, "plan completed",
		slog.Int("days", len(result.Itineraries)),
		slog.Int("iterations_used", result.IterationsUsed),
		slog.Bool("timed_out", result.TimedOut))
	span.SetStatus(codes.Ok, "plan completed")
}
