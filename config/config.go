package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research assistant.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Research  ResearchConfig  `mapstructure:"research"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	TurnTimeout    time.Duration `mapstructure:"turn_timeout"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address     string `mapstructure:"address"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	AuthEnabled bool   `mapstructure:"auth_enabled"`
	CORSOrigins string `mapstructure:"cors_origins"`
	JanitorCron string `mapstructure:"janitor_cron"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // anthropic, openai
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for different tasks
type LLMRoutingConfig struct {
	Reasoning  string `mapstructure:"reasoning"`  // tool/response selection
	Reflection string `mapstructure:"reflection"` // result validation
	Extraction string `mapstructure:"extraction"` // structured data extraction from search output
	Research   string `mapstructure:"research"`   // long-form deep research
	Fallback   string `mapstructure:"fallback"`
}

// SearchConfig contains web search and external content settings
type SearchConfig struct {
	Provider          string        `mapstructure:"provider"` // serper or brave
	SerperAPIKey      string        `mapstructure:"serper_api_key"`
	BraveAPIKey       string        `mapstructure:"brave_api_key"`
	ListenNotesAPIKey string        `mapstructure:"listennotes_api_key"`
	MaxResults        int           `mapstructure:"max_results"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// AgentConfig contains state machine thresholds. The floors and ceilings are
// hand-tuned, which is why they live here instead of as constants.
type AgentConfig struct {
	SufficiencyFloor int           `mapstructure:"sufficiency_floor"` // >= this many primary items is always enough
	ToolCallCeiling  int           `mapstructure:"tool_call_ceiling"` // force a response after this many tool calls
	RetryCeiling     int           `mapstructure:"retry_ceiling"`     // force a response after this many failed tools
	HistoryWindow    int           `mapstructure:"history_window"`    // messages of history shown to the reasoner
	SummaryItems     int           `mapstructure:"summary_items"`     // items per category in research summaries
	ToolTimeout      time.Duration `mapstructure:"tool_timeout"`
}

// ResearchConfig contains deep-research phase budgets
type ResearchConfig struct {
	Depth  string                 `mapstructure:"depth"` // quick, standard, comprehensive, exhaustive
	Phases map[string]PhaseBudget `mapstructure:"phases"`
}

// PhaseBudget bounds one deep-research call
type PhaseBudget struct {
	MaxSearches    int `mapstructure:"max_searches"`
	ThinkingBudget int `mapstructure:"thinking_budget"`
	MaxTokens      int `mapstructure:"max_tokens"`
	Passes         int `mapstructure:"passes"`
}

// StreamConfig contains event stream timing settings
type StreamConfig struct {
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
	PopTimeout        time.Duration `mapstructure:"pop_timeout"`
	QueueSize         int           `mapstructure:"queue_size"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	LogFile      string `mapstructure:"log_file"`
	CostTracking bool   `mapstructure:"cost_tracking"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds a postgres connection string from the configured parts.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	port := r.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", r.Host, port)
}

// LoadConfig loads configuration from file and environment variables.
// The file is optional; defaults plus CURRICULA_* env vars are enough to run.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("CURRICULA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// General defaults
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.turn_timeout", "15m")
	viper.SetDefault("general.default_timeout", "30s")

	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.auth_enabled", false)
	viper.SetDefault("server.cors_origins", "http://localhost:3000")
	viper.SetDefault("server.janitor_cron", "0 * * * *")

	// LLM defaults
	viper.SetDefault("llm.routing.reasoning", "claude-sonnet")
	viper.SetDefault("llm.routing.reflection", "claude-sonnet")
	viper.SetDefault("llm.routing.extraction", "claude-sonnet")
	viper.SetDefault("llm.routing.research", "claude-sonnet")
	viper.SetDefault("llm.routing.fallback", "claude-sonnet")

	// Search defaults
	viper.SetDefault("search.provider", "serper")
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.timeout", "30s")
	viper.SetDefault("search.max_retries", 3)

	// Agent thresholds. Hand-tuned in the original system; kept as-is.
	viper.SetDefault("agent.sufficiency_floor", 10)
	viper.SetDefault("agent.tool_call_ceiling", 4)
	viper.SetDefault("agent.retry_ceiling", 3)
	viper.SetDefault("agent.history_window", 10)
	viper.SetDefault("agent.summary_items", 5)
	viper.SetDefault("agent.tool_timeout", "2m")

	// Deep research phase budgets
	viper.SetDefault("research.depth", "comprehensive")
	viper.SetDefault("research.phases.clarify.max_searches", 1)
	viper.SetDefault("research.phases.clarify.thinking_budget", 4000)
	viper.SetDefault("research.phases.clarify.max_tokens", 8000)
	viper.SetDefault("research.phases.clarify.passes", 1)
	viper.SetDefault("research.phases.competitive.max_searches", 50)
	viper.SetDefault("research.phases.competitive.thinking_budget", 15000)
	viper.SetDefault("research.phases.competitive.max_tokens", 60000)
	viper.SetDefault("research.phases.competitive.passes", 2)
	viper.SetDefault("research.phases.expertise.max_searches", 40)
	viper.SetDefault("research.phases.expertise.thinking_budget", 15000)
	viper.SetDefault("research.phases.expertise.max_tokens", 50000)
	viper.SetDefault("research.phases.expertise.passes", 2)
	viper.SetDefault("research.phases.sentiment.max_searches", 35)
	viper.SetDefault("research.phases.sentiment.thinking_budget", 12000)
	viper.SetDefault("research.phases.sentiment.max_tokens", 45000)
	viper.SetDefault("research.phases.sentiment.passes", 2)
	viper.SetDefault("research.phases.synthesis.max_searches", 5)
	viper.SetDefault("research.phases.synthesis.thinking_budget", 20000)
	viper.SetDefault("research.phases.synthesis.max_tokens", 60000)
	viper.SetDefault("research.phases.synthesis.passes", 1)
	viper.SetDefault("research.phases.refine.max_searches", 15)
	viper.SetDefault("research.phases.refine.thinking_budget", 8000)
	viper.SetDefault("research.phases.refine.max_tokens", 15000)
	viper.SetDefault("research.phases.refine.passes", 1)

	// Stream timing
	viper.SetDefault("stream.keepalive_interval", "15s")
	viper.SetDefault("stream.pop_timeout", "2s")
	viper.SetDefault("stream.queue_size", 256)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)

	// Storage defaults
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")
	viper.SetDefault("storage.redis.session_ttl", "24h")
	viper.SetDefault("storage.postgres.host", "")
	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.postgres.timeout", "5s")
}

// overrideFromEnv overrides configuration with environment variables
func overrideFromEnv() {
	// LLM API keys
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		viper.Set("llm.providers.anthropic.api_key", apiKey)
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("llm.providers.openai.api_key", apiKey)
	}

	// Search API keys
	if apiKey := os.Getenv("SERPER_API_KEY"); apiKey != "" {
		viper.Set("search.serper_api_key", apiKey)
	}
	if apiKey := os.Getenv("BRAVE_SEARCH_KEY"); apiKey != "" {
		viper.Set("search.brave_api_key", apiKey)
	}
	if apiKey := os.Getenv("LISTENNOTES_API_KEY"); apiKey != "" {
		viper.Set("search.listennotes_api_key", apiKey)
	}

	// Server secrets
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		viper.Set("server.jwt_secret", secret)
	}

	// Redis configuration
	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("storage.redis.password", password)
	}

	// Postgres configuration
	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		viper.Set("storage.postgres.host", host)
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.postgres.port", p)
		}
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		viper.Set("storage.postgres.user", user)
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		viper.Set("storage.postgres.password", pass)
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		viper.Set("storage.postgres.dbname", db)
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if len(config.LLM.Providers) == 0 {
		return fmt.Errorf("at least one LLM provider must be configured")
	}

	routingModels := []string{
		config.LLM.Routing.Reasoning,
		config.LLM.Routing.Reflection,
		config.LLM.Routing.Extraction,
		config.LLM.Routing.Research,
		config.LLM.Routing.Fallback,
	}
	for _, model := range routingModels {
		if model == "" {
			continue
		}
		found := false
		for _, provider := range config.LLM.Providers {
			for _, providerModel := range provider.Models {
				if providerModel.Name == model {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return fmt.Errorf("routing model %q not found in any provider", model)
		}
	}

	if config.Agent.SufficiencyFloor <= 0 {
		return fmt.Errorf("agent.sufficiency_floor must be > 0")
	}
	if config.Agent.ToolCallCeiling <= 0 {
		return fmt.Errorf("agent.tool_call_ceiling must be > 0")
	}
	if config.Agent.RetryCeiling <= 0 {
		return fmt.Errorf("agent.retry_ceiling must be > 0")
	}
	if config.Stream.KeepaliveInterval <= 0 || config.Stream.PopTimeout <= 0 {
		return fmt.Errorf("stream intervals must be > 0")
	}
	for name, phase := range config.Research.Phases {
		if phase.MaxTokens > 0 && phase.ThinkingBudget >= phase.MaxTokens {
			return fmt.Errorf("research.phases.%s: max_tokens must exceed thinking_budget", name)
		}
	}
	return nil
}
