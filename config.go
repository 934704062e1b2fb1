package chatrelay

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Desarso/chatrelay/models/anthropic"
	"github.com/Desarso/chatrelay/models/gemini"
	"github.com/Desarso/chatrelay/models/openrouter"
	"github.com/Desarso/chatrelay/stores"
)

// Config holds everything needed to run the relay server.
type Config struct {
	Port        string
	CORSOrigin  string
	Development bool

	StoreType    string // "sqlite", "postgres"
	DatabasePath string
	DatabaseURL  string

	Provider          string // "anthropic", "gemini", "openrouter"
	AnthropicAPIKey   string
	AnthropicBaseURL  string
	Model             string
	MaxTokens         int
	GeminiAPIKey      string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	AnnounceMessageID bool

	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration

	PruneSchedule string
	PruneAfter    time.Duration // 0 disables pruning
}

// NewConfig creates a configuration with default values
func NewConfig() *Config {
	return &Config{
		Port:          "3001",
		CORSOrigin:    "http://localhost:3000",
		StoreType:     "sqlite",
		DatabasePath:  "chatrelay.sqlite",
		Provider:      "anthropic",
		Model:         anthropic.DefaultModel,
		MaxTokens:     anthropic.DefaultMaxTokens,
		PruneSchedule: stores.DefaultPruneSchedule,
		PruneAfter:    24 * time.Hour,
	}
}

// LoadConfig reads a .env file if present, then the environment, on top of
// the defaults.
func LoadConfig() (*Config, error) {
	// Missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	c := NewConfig()
	c.Port = envString("PORT", c.Port)
	c.CORSOrigin = envString("CORS_ORIGIN", c.CORSOrigin)
	c.Development = envString("APP_ENV", "") == "development"
	c.StoreType = envString("STORE_TYPE", c.StoreType)
	c.DatabasePath = envString("DATABASE_PATH", c.DatabasePath)
	c.DatabaseURL = envString("DATABASE_URL", c.DatabaseURL)
	c.Provider = strings.ToLower(envString("UPSTREAM_PROVIDER", c.Provider))
	c.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.AnthropicBaseURL = os.Getenv("ANTHROPIC_BASE_URL")
	c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	c.OpenRouterBaseURL = os.Getenv("OPENROUTER_BASE_URL")
	c.PruneSchedule = envString("PRUNE_SCHEDULE", c.PruneSchedule)

	switch c.Provider {
	case "gemini":
		c.Model = envString("GEMINI_MODEL", gemini.DefaultModel)
	case "openrouter":
		c.Model = envString("OPENROUTER_MODEL", openrouter.DefaultModel)
	default:
		c.Model = envString("CLAUDE_MODEL", c.Model)
	}

	var err error
	if c.MaxTokens, err = envInt("CLAUDE_MAX_TOKENS", c.MaxTokens); err != nil {
		return nil, err
	}
	if c.AnnounceMessageID, err = envBool("ANNOUNCE_MESSAGE_ID", false); err != nil {
		return nil, err
	}
	maxFailures, err := envInt("BREAKER_MAX_FAILURES", 0)
	if err != nil {
		return nil, err
	}
	if maxFailures < 0 {
		return nil, fmt.Errorf("BREAKER_MAX_FAILURES must not be negative")
	}
	c.BreakerMaxFailures = uint32(maxFailures)
	if c.BreakerTimeout, err = envDuration("BREAKER_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if c.PruneAfter, err = envDuration("PRUNE_AFTER", c.PruneAfter); err != nil {
		return nil, err
	}

	return c, c.Validate()
}

// Validate checks that the selected store and provider can be built.
func (c *Config) Validate() error {
	switch c.StoreType {
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite store")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unsupported store type: %s", c.StoreType)
	}

	switch c.Provider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required")
		}
	case "openrouter":
		if c.OpenRouterAPIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unsupported upstream provider: %s", c.Provider)
	}

	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}

// StoreConfig returns the stores configuration for the selected backend.
func (c *Config) StoreConfig() *stores.StoreConfig {
	if c.StoreType == "postgres" {
		return stores.NewStoreConfig("postgres", c.DatabaseURL)
	}
	return stores.NewStoreConfig("sqlite", c.DatabasePath)
}

// WithPort sets the listen port
func (c *Config) WithPort(port string) *Config {
	c.Port = port
	return c
}

// WithModel sets the default model used when a turn does not name one
func (c *Config) WithModel(model string) *Config {
	c.Model = model
	return c
}

// WithSQLiteStore selects a SQLite store at the given path
func (c *Config) WithSQLiteStore(dbPath string) *Config {
	c.StoreType = "sqlite"
	c.DatabasePath = dbPath
	return c
}

// WithPostgresStore selects a PostgreSQL store with the given DSN
func (c *Config) WithPostgresStore(dsn string) *Config {
	c.StoreType = "postgres"
	c.DatabaseURL = dsn
	return c
}

// WithAnthropic selects the Anthropic provider
func (c *Config) WithAnthropic(apiKey string) *Config {
	c.Provider = "anthropic"
	c.AnthropicAPIKey = apiKey
	return c
}

// WithGemini selects the Gemini provider
func (c *Config) WithGemini(apiKey string) *Config {
	c.Provider = "gemini"
	c.GeminiAPIKey = apiKey
	if c.Model == anthropic.DefaultModel {
		c.Model = gemini.DefaultModel
	}
	return c
}

// WithOpenRouter selects OpenRouter or another OpenAI-compatible endpoint
func (c *Config) WithOpenRouter(apiKey string) *Config {
	c.Provider = "openrouter"
	c.OpenRouterAPIKey = apiKey
	if c.Model == anthropic.DefaultModel {
		c.Model = openrouter.DefaultModel
	}
	return c
}

// WithAnnounceMessageID enables the message_id frame
func (c *Config) WithAnnounceMessageID(enabled bool) *Config {
	c.AnnounceMessageID = enabled
	return c
}

// WithPruning sets how often and after how long empty conversations are removed
func (c *Config) WithPruning(schedule string, after time.Duration) *Config {
	c.PruneSchedule = schedule
	c.PruneAfter = after
	return c
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
