package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/FACorreiaa/go-poi-au-suggestions/app/db"
	"github.com/FACorreiaa/go-poi-au-suggestions/config"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/itinorchestrator"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/llmclient"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/placesvalidator"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/poiorchestrator"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/travelleg"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/vectorindex"
	"github.com/FACorreiaa/go-poi-au-suggestions/internal/core/websearch"
)

const resultCacheTTL = 30 * time.Minute

// Container holds every wired collaborator the itinerary-planning pipeline
// needs, built once at startup from config.Config.
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool

	LLM          llmclient.Client
	Vector       vectorindex.VectorIndex
	Web          websearch.Adapter
	Validator    placesvalidator.Validator
	CityResolver placesvalidator.CityResolver
	Legs         travelleg.Calculator
	POI          *poiorchestrator.Orchestrator
	Itinerary    *itinorchestrator.Orchestrator
}

// NewContainer initializes and returns a new dependency container.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	llm, err := newLLMClient(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	embedder, ok := llm.(vectorindex.Embedder)
	if !ok {
		pool.Close()
		return nil, fmt.Errorf("configured LLM client %T does not implement embedding support", llm)
	}
	vector := vectorindex.NewPGIndex(pool, embedder, logger)
	web := websearch.NewHTTPAdapter(cfg.Planner.WebSearchBaseURL, cfg.Planner.WebSearchAPIKey, logger)
	validator := placesvalidator.NewHTTPValidator(cfg.Planner.PlacesBaseURL, cfg.Planner.GoogleMapsAPIKey, logger)
	cityResolver := placesvalidator.NewPGCityResolver(pool, logger)
	legs := travelleg.NewHTTPCalculator(cfg.Planner.TravelLegBaseURL, cfg.Planner.GoogleMapsAPIKey, logger)

	poiCfg := poiorchestrator.DefaultConfig()
	poiCfg.WebWeight = cfg.Planner.WebWeight
	poiCfg.EmbeddingWeight = cfg.Planner.EmbeddingWeight
	poiCfg.RerankTopN = cfg.Planner.RerankTopN
	poiCfg.KeywordK = cfg.Planner.KeywordK
	poiCfg.EmbeddingK = cfg.Planner.EmbeddingK
	poiCfg.WebSearchK = cfg.Planner.WebSearchK
	poiCfg.FinalPoiCount = cfg.Planner.FinalPoiCount

	poi := poiorchestrator.New(llm, web, vector, validator, poiCfg, logger).WithCityResolver(cityResolver)

	itinCfg := itinorchestrator.DefaultConfig()
	itinCfg.MaxIterations = cfg.Planner.MaxIterations
	itinCfg.MaxDailyMinutes = cfg.Planner.MaxDailyMinutes
	itinCfg.OptimalPoiCount = cfg.Planner.OptimalPoiCount
	itinCfg.MaxPoiCount = cfg.Planner.MaxPoiCount
	itinCfg.MinPoiCount = cfg.Planner.MinPoiCount
	itinCfg.MinPoiCountGate = cfg.Planner.MinPoiCountGate
	itinCfg.MaxEnrichAttempts = cfg.Planner.MaxEnrichAttempts

	itin := itinorchestrator.New(llm, legs, poi, itinCfg, logger).WithCache(newResultCache(cfg, logger))

	return &Container{
		Config:       cfg,
		Logger:       logger,
		Pool:         pool,
		LLM:          llm,
		Vector:       vector,
		Web:          web,
		Validator:    validator,
		CityResolver: cityResolver,
		Legs:         legs,
		POI:          poi,
		Itinerary:    itin,
	}, nil
}

// newLLMClient selects the Gemini bearer-token client when an API key is
// configured, falling back to the no-auth OpenAI-compatible client for a
// locally hosted model otherwise.
func newLLMClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llmclient.Client, error) {
	retry := llmclient.RetryConfig{
		MaxRetries: cfg.Planner.LLMClientMaxRetries,
		Timeout:    time.Duration(cfg.Planner.LLMClientTimeout) * time.Second,
	}

	if cfg.Planner.LLMAPIKey != "" {
		return llmclient.NewGeminiClient(ctx, cfg.Planner.LLMAPIKey, cfg.Planner.LLMModel, logger, retry)
	}

	logger.Warn("no LLM API key configured, falling back to local OpenAI-compatible endpoint",
		slog.String("base_url", cfg.Planner.LLMBaseURL))
	return llmclient.NewOpenAIClient(cfg.Planner.LLMBaseURL, cfg.Planner.LLMModel, logger, retry), nil
}

// newResultCache picks the shared Redis-backed cache when REDIS_ADDR is
// configured, otherwise a process-local one.
func newResultCache(cfg *config.Config, logger *slog.Logger) itinorchestrator.ResultCache {
	if cfg.Planner.RedisAddr != "" {
		logger.Info("using Redis result cache", slog.String("addr", cfg.Planner.RedisAddr))
		return itinorchestrator.NewRedisResultCache(cfg.Planner.RedisAddr, resultCacheTTL)
	}
	return itinorchestrator.NewLocalResultCache(resultCacheTTL)
}

// Close releases all resources held by the container.
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WaitForDB waits for the database to be ready.
func (c *Container) WaitForDB(ctx context.Context) bool {
	return database.WaitForDB(ctx, c.Pool, c.Logger)
}

// RunMigrations runs database migrations.
func (c *Container) RunMigrations(connectionURL string) error {
	return database.RunMigrations(connectionURL, c.Logger)
}
