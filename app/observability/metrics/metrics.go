package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
// Make fields public so they can be accessed from other packages.
type AppMetrics struct {
	PlanRequestsTotal       metric.Int64Counter
	PlanDurationSeconds     metric.Float64Histogram
	PlanIterationsUsed      metric.Int64Histogram
	LLMRetriesTotal         metric.Int64Counter
	ResultCacheHitsTotal    metric.Int64Counter
	DbQueryDurationSeconds  metric.Float64Histogram
	DbQueryErrorsTotal      metric.Int64Counter
}

var (
	// Global instance of AppMetrics (initialized once)
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() { // Ensure this only runs once
		meter := otel.GetMeterProvider().Meter("WanderWiseAI") // Get meter from global provider
		var err error
		m := &AppMetrics{}

		m.PlanRequestsTotal, err = meter.Int64Counter(
			"plan_requests_total",
			metric.WithDescription("Total number of itinerary plan requests completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create plan_requests_total: %v", err)
		}

		m.PlanDurationSeconds, err = meter.Float64Histogram(
			"plan_duration_seconds",
			metric.WithDescription("Duration of itinerary plan requests in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create plan_duration_seconds: %v", err)
		}

		m.PlanIterationsUsed, err = meter.Int64Histogram(
			"plan_iterations_used",
			metric.WithDescription("Refinement-loop iterations consumed per plan request"),
			metric.WithUnit("{iteration}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create plan_iterations_used: %v", err)
		}

		m.LLMRetriesTotal, err = meter.Int64Counter(
			"llm_retries_total",
			metric.WithDescription("Total number of LLM call retries across all clients"),
			metric.WithUnit("{retry}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create llm_retries_total: %v", err)
		}

		m.ResultCacheHitsTotal, err = meter.Int64Counter(
			"result_cache_hits_total",
			metric.WithDescription("Total number of itinerary plan result cache hits"),
			metric.WithUnit("{hit}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create result_cache_hits_total: %v", err)
		}

		m.DbQueryDurationSeconds, err = meter.Float64Histogram(
			"db_query_duration_seconds",
			metric.WithDescription("Duration of database queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_duration_seconds: %v", err)
		}

		m.DbQueryErrorsTotal, err = meter.Int64Counter(
			"db_query_errors_total",
			metric.WithDescription("Total number of database query errors"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_errors_total: %v", err)
		}

		log.Println("Application metrics instruments initialized.")
		appMetrics = m // Assign to global variable
	})
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		// This indicates a programming error - InitAppMetrics must be called at startup.
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
