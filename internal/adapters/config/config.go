package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration.
// Constructed once at startup and passed by reference; there are no
// ambient globals for provider keys or model selection.
type Config struct {
	MarketData MarketDataConfig `envconfig:"MARKETDATA"`
	AI         AIConfig         `envconfig:"AI"`
	Agent      AgentConfig      `envconfig:"AGENT"`
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	HTTP       HTTPConfig       `envconfig:"HTTP"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
}

// MarketDataConfig holds per-provider API keys.
// A missing key surfaces as a per-call configuration error at use time,
// never as a startup failure: most providers are optional.
type MarketDataConfig struct {
	FMPAPIKey          string        `envconfig:"FMP_API_KEY" required:"false"`
	FinnhubAPIKey      string        `envconfig:"FINNHUB_API_KEY" required:"false"`
	TradierAPIKey      string        `envconfig:"TRADIER_API_KEY" required:"false"`
	AlphaVantageAPIKey string        `envconfig:"ALPHAVANTAGE_API_KEY" required:"false"`
	CacheQuoteTTL      time.Duration `envconfig:"CACHE_QUOTE_TTL" default:"30s"`
	CacheBarsTTL       time.Duration `envconfig:"CACHE_BARS_TTL" default:"5m"`
}

// AIProviderConfig represents one chat-completion endpoint
type AIProviderConfig struct {
	APIKey  string `envconfig:"API_KEY" required:"false"`
	BaseURL string `envconfig:"BASE_URL" required:"false"` // empty means api.openai.com
}

// TaskModelConfig selects model and temperature for one task type
type TaskModelConfig struct {
	Model       string  `envconfig:"MODEL"`
	Temperature float32 `envconfig:"TEMPERATURE"`
}

// AIConfig represents primary and fallback AI provider configuration
// plus per-task model selection
type AIConfig struct {
	Primary  AIProviderConfig `envconfig:"PRIMARY"`
	Fallback AIProviderConfig `envconfig:"FALLBACK"`

	Analysis       TaskModelConfig `envconfig:"ANALYSIS"`
	Reflection     TaskModelConfig `envconfig:"REFLECTION"`
	Chat           TaskModelConfig `envconfig:"CHAT"`
	Recommendation TaskModelConfig `envconfig:"RECOMMENDATION"`

	FallbackModel  string        `envconfig:"FALLBACK_MODEL" default:"deepseek-chat"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"120s"`
}

// AgentConfig holds the orchestrator's budgets
type AgentConfig struct {
	MaxIterations     int           `envconfig:"MAX_ITERATIONS" default:"10"`
	MaxToolCalls      int           `envconfig:"MAX_TOOL_CALLS" default:"15"`
	ForceFinalizeAt   int           `envconfig:"FORCE_FINALIZE_AT" default:"8"`
	ToolTimeout       time.Duration `envconfig:"TOOL_TIMEOUT" default:"15s"`
	MaxReflections    int           `envconfig:"MAX_REFLECTIONS" default:"2"`
	MaxConcurrentRuns int           `envconfig:"MAX_CONCURRENT_RUNS" default:"4"`
	StaleRunTimeout   time.Duration `envconfig:"STALE_RUN_TIMEOUT" default:"30m"`
	JobRetention      time.Duration `envconfig:"JOB_RETENTION" default:"720h"`
}

// DatabaseConfig represents database connection parameters
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"alphalens"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// RedisConfig represents the optional provider-response cache
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" required:"false"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// ClickHouseConfig represents the optional tool-usage metrics sink
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	Database string `envconfig:"CLICKHOUSE_DATABASE" default:"alphalens"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD" required:"false"`
}

// TelegramConfig represents optional completion notifications
type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
}

// HTTPConfig represents the API and probe servers
type HTTPConfig struct {
	Port       string `envconfig:"HTTP_PORT" default:"8080"`
	HealthPort string `envconfig:"HEALTH_PORT" default:"8081"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" required:"false"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	applyModelDefaults(&cfg.AI)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyModelDefaults fills per-task model/temperature defaults.
// envconfig cannot default nested float32 fields per section, so the
// zero values are resolved here.
func applyModelDefaults(ai *AIConfig) {
	if ai.Analysis.Model == "" {
		ai.Analysis.Model = "gpt-4o"
	}
	if ai.Analysis.Temperature == 0 {
		ai.Analysis.Temperature = 0.7
	}
	if ai.Reflection.Model == "" {
		ai.Reflection.Model = "gpt-4o-mini"
	}
	if ai.Reflection.Temperature == 0 {
		ai.Reflection.Temperature = 0.3
	}
	if ai.Chat.Model == "" {
		ai.Chat.Model = "gpt-4o-mini"
	}
	if ai.Chat.Temperature == 0 {
		ai.Chat.Temperature = 0.7
	}
	if ai.Recommendation.Model == "" {
		ai.Recommendation.Model = "gpt-4o"
	}
	if ai.Recommendation.Temperature == 0 {
		ai.Recommendation.Temperature = 0.2
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	// The llm client requires a primary provider; a fallback alone
	// cannot serve tool-calling requests.
	if c.AI.Primary.APIKey == "" {
		return fmt.Errorf("primary AI provider must be configured")
	}

	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1")
	}
	if c.Agent.MaxToolCalls < 1 {
		return fmt.Errorf("max_tool_calls must be at least 1")
	}
	if c.Agent.ForceFinalizeAt < 1 || c.Agent.ForceFinalizeAt > c.Agent.MaxToolCalls {
		return fmt.Errorf("force_finalize_at must be between 1 and max_tool_calls")
	}
	if c.Agent.ToolTimeout <= 0 {
		return fmt.Errorf("tool_timeout must be positive")
	}
	if c.Agent.MaxConcurrentRuns < 1 {
		return fmt.Errorf("max_concurrent_runs must be at least 1")
	}

	return nil
}

// TaskConfig returns model selection for the given task type name
func (c *AIConfig) TaskConfig(task string) TaskModelConfig {
	switch task {
	case "reflection":
		return c.Reflection
	case "chat":
		return c.Chat
	case "recommendation":
		return c.Recommendation
	default:
		return c.Analysis
	}
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetDSN returns the ClickHouse connection string
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%d/%s",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}
