package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode             string                 `mapstructure:"mode"`
	Dotenv           string                 `mapstructure:"dotenv"`
	Handlers         HandlersConfig         `mapstructure:"handlers"`
	Server           ServerConfig           `mapstructure:"server"`
	UpstreamServices UpstreamServicesConfig `mapstructure:"upstream_services"`
	Database         DatabaseConfig         `mapstructure:"database"`
	Planner          PlannerConfig          `mapstructure:"planner"`
}

// PlannerConfig carries every tunable and API key named in spec.md §6's
// configuration table, consumed by the llmclient/poiorchestrator/
// itinorchestrator packages. Values are unmarshaled from YAML/env and then
// translated into the package-local structs (llmclient.RetryConfig,
// poiorchestrator.Config, itinorchestrator.Config) at wiring time.
// LLMClientMaxTokens, Temperature and TopP are loaded but not passed to
// either LLM client; requests use the provider's sampling defaults.
type PlannerConfig struct {
	LLMClientTimeout    int     `mapstructure:"llm_client_timeout"`
	LLMClientMaxRetries int     `mapstructure:"llm_client_max_retries"`
	LLMClientMaxTokens  int     `mapstructure:"llm_client_max_tokens"`
	Temperature         float64 `mapstructure:"temperature"`
	TopP                float64 `mapstructure:"top_p"`

	WebWeight       float64 `mapstructure:"web_weight"`
	EmbeddingWeight float64 `mapstructure:"embedding_weight"`
	RerankTopN      int     `mapstructure:"rerank_top_n"`
	KeywordK        int     `mapstructure:"keyword_k"`
	EmbeddingK      int     `mapstructure:"embedding_k"`
	WebSearchK      int     `mapstructure:"web_search_k"`
	FinalPoiCount   int     `mapstructure:"final_poi_count"`

	MaxIterations     int `mapstructure:"max_iterations"`
	MaxDailyMinutes   int `mapstructure:"max_daily_minutes"`
	OptimalPoiCount   int `mapstructure:"optimal_poi_count"`
	MaxPoiCount       int `mapstructure:"max_poi_count"`
	MinPoiCount       int `mapstructure:"min_poi_count"`
	MinPoiCountGate   int `mapstructure:"min_poi_count_gate"`
	MaxEnrichAttempts int `mapstructure:"max_enrich_attempts"`

	LLMAPIKey        string `mapstructure:"llm_api_key"`
	LLMBaseURL       string `mapstructure:"llm_base_url"`
	LLMModel         string `mapstructure:"llm_model"`
	WebSearchAPIKey  string `mapstructure:"web_search_api_key"`
	WebSearchBaseURL string `mapstructure:"web_search_base_url"`
	GoogleMapsAPIKey string `mapstructure:"google_maps_api_key"`
	PlacesBaseURL    string `mapstructure:"places_base_url"`
	TravelLegBaseURL string `mapstructure:"travel_leg_base_url"`
	VectorDBDSN      string `mapstructure:"vector_db_dsn"`
	RedisAddr        string `mapstructure:"redis_addr"`
}

type HandlersConfig struct {
	ExternalAPI struct {
		Port      string `mapstructure:"port"`
		CertFile  string `mapstructure:"certFile"`
		KeyFile   string `mapstructure:"keyFile"`
		EnableTLS bool   `mapstructure:"enableTLS"`
	} `mapstructure:"externalAPI"`
	Pprof struct {
		Port      string `mapstructure:"port"`
		CertFile  string `mapstructure:"certFile"`
		KeyFile   string `mapstructure:"keyFile"`
		EnableTLS bool   `mapstructure:"enableTLS"`
	} `mapstructure:"pprof"`
	Prometheus struct {
		Port      string `mapstructure:"port"`
		CertFile  string `mapstructure:"certFile"`
		KeyFile   string `mapstructure:"keyFile"`
		EnableTLS bool   `mapstructure:"enableTLS"`
	} `mapstructure:"prometheus"`
}

type ServerConfig struct {
	Port                   string `mapstructure:"port"`
	CertFile               string `mapstructure:"certFile"`
	KeyFile                string `mapstructure:"keyFile"`
	EnableTLS              bool   `mapstructure:"enableTLS"`
	Timeout                int    `mapstructure:"timeout"`
	IdleTimeout            int    `mapstructure:"idleTimeout"`
	ReadTimeout            int    `mapstructure:"readTimeout"`
	WriteTimeout           int    `mapstructure:"writeTimeout"`
	IdleConnsClosedTimeout int    `mapstructure:"idleConnsClosedTimeout"`
	ShutdownTimeout        int    `mapstructure:"shutdownTimeout"`
}

type UpstreamServicesConfig struct {
	AuthService struct {
		Host string `mapstructure:"host"`
		Port string `mapstructure:"port"`
	} `mapstructure:"authService"`
	PaymentService struct {
		Host string `mapstructure:"host"`
		Port string `mapstructure:"port"`
	} `mapstructure:"paymentService"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	PoolSize int    `mapstructure:"poolSize"`
	Timeout  int    `mapstructure:"timeout"`
	IdleTime int    `mapstructure:"idleTime"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")
	v.AddConfigPath("/usr/local/bin")
	v.AddConfigPath("/usr/local/bin/inkme")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Try to load file-based config
	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	// Unmarshal the config into the Config struct
	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}

	// API keys and DSNs are overlaid from the environment when set (teacher
	// convention, e.g. generative_ai/service.go's
	// os.Getenv("GOOGLE_GEMINI_API_KEY")); a YAML value is kept otherwise.
	overlayEnv(&config.Planner)

	fmt.Println("Successfully loaded app configs...")
	return config, nil
}

// overlayEnv fills Planner secrets from the environment when set, leaving
// any YAML-provided value (e.g. a local dev default) untouched otherwise.
func overlayEnv(p *PlannerConfig) {
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		p.LLMAPIKey = v
	}
	if v := os.Getenv("WEB_SEARCH_API_KEY"); v != "" {
		p.WebSearchAPIKey = v
	}
	if v := os.Getenv("GOOGLE_MAPS_API_KEY"); v != "" {
		p.GoogleMapsAPIKey = v
	}
	if v := os.Getenv("VECTOR_DB_DSN"); v != "" {
		p.VectorDBDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		p.RedisAddr = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		p.LLMBaseURL = v
	}
}
