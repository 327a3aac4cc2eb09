// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// the HTTP server, chat platforms, context store, NLU drivers and
// observability integrations.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Context store backends
const (
	StoreSQLite = "sqlite"
	StoreS3     = "s3"
	StoreMemory = "memory" // Not persisted; for local development
)

// NLU drivers
const (
	NLUNone   = ""
	NLULUIS   = "luis"
	NLUWit    = "wit"
	NLUOpenAI = "openai"
	NLUGemini = "gemini"
)

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	ServerName      string // Reported as the service field in logs

	// Routing
	RoutesFile    string // YAML route table; empty uses the built-in table
	FallbackReply string // Reply when no route matches; empty = stay silent

	// Data Configuration
	DataDir string // Data directory for SQLite database

	Store       StoreConfig
	Facebook    FacebookConfig
	Telegram    TelegramConfig
	Line        LineConfig
	NLU         NLUConfig
	Sentry      SentryConfig
	BetterStack BetterStackConfig
	Metrics     MetricsConfig

	// Bot Configuration (embedded)
	Bot BotConfig
}

// StoreConfig selects and configures the context store backend.
type StoreConfig struct {
	Kind string // "sqlite" (default), "s3" or "memory"

	// S3-compatible object storage (AWS S3, Cloudflare R2, MinIO)
	S3Endpoint    string // Empty uses the AWS default endpoint
	S3Region      string
	S3AccessKeyID string // Empty falls back to the default credential chain
	S3SecretKey   string
	S3Bucket      string
	S3Prefix      string
	S3PathStyle   bool
	S3Compress    bool // Store records as zstd-compressed JSON
}

// FacebookConfig holds Messenger Platform settings.
type FacebookConfig struct {
	PageToken   string
	VerifyToken string
	AppSecret   string // Enables X-Hub-Signature-256 verification when set
	GraphURL    string
	Subscribe   bool // Subscribe the page to the app on startup
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	Token         string
	WebhookSecret string // Compared to X-Telegram-Bot-Api-Secret-Token when set
}

// LineConfig holds LINE Messaging API settings.
type LineConfig struct {
	ChannelAccessToken string
	ChannelSecret      string
}

// NLUConfig selects the optional intent classification driver.
type NLUConfig struct {
	Driver  string
	Intents []string // Closed intent list for LLM-based drivers

	LUISAppID    string
	LUISKey      string
	LUISEndpoint string

	WitToken   string
	WitVersion string

	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	GeminiAPIKey string
	GeminiModel  string
}

// SentryConfig holds error tracking settings.
type SentryConfig struct {
	Enabled     bool
	Token       string
	Host        string
	Environment string
	SampleRate  float64
}

// BetterStackConfig holds remote log shipping settings.
type BetterStackConfig struct {
	Enabled  bool
	Token    string
	Endpoint string
}

// MetricsConfig guards the /metrics endpoint.
type MetricsConfig struct {
	AuthEnabled bool
	Username    string
	Password    string
}

// BotConfig holds bot-specific configuration
type BotConfig struct {
	// Timeouts
	WebhookTimeout time.Duration // Timeout for processing one update (see config/timeouts.go)

	// Per-chat Rate Limits (Token Bucket Algorithm)
	UserRateLimitBurst        float64 // Maximum burst tokens per chat (default: 15)
	UserRateLimitRefillPerSec float64 // Tokens refilled per second (default: 0.5)

	// NLU Rate Limits (Multi-Layer: Hourly + Daily)
	NLUBurstTokens   float64 // Maximum burst tokens for NLU queries (default: 40)
	NLURefillPerHour float64 // NLU tokens refilled per hour (default: 20)
	NLUDailyLimit    int     // Maximum NLU queries per chat per day (default: 200, 0 = disabled)
}

// Mode selects which settings validation requires.
type Mode int

const (
	// ServerMode requires at least one platform.
	ServerMode Mode = iota
	// ToolMode is for command-line tools that only touch the context store
	// or route table, so platform credentials are optional.
	ToolMode
)

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	return LoadForMode(ServerMode)
}

// LoadForMode reads configuration and validates it for mode.
func LoadForMode(mode Mode) (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		// Server Configuration
		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),
		ServerName:      getEnv(EnvServerName, "calamars"),

		// Routing
		RoutesFile:    getEnv(EnvRoutesFile, ""),
		FallbackReply: getEnv(EnvFallbackReply, ""),

		// Data Configuration
		DataDir: getEnv(EnvDataDir, getDefaultDataDir()),

		Store: StoreConfig{
			Kind:          strings.ToLower(getEnv(EnvContextStore, StoreSQLite)),
			S3Endpoint:    getEnv(EnvS3Endpoint, ""),
			S3Region:      getEnv(EnvS3Region, "auto"),
			S3AccessKeyID: getEnv(EnvS3AccessKeyID, ""),
			S3SecretKey:   getEnv(EnvS3SecretKey, ""),
			S3Bucket:      getEnv(EnvS3Bucket, ""),
			S3Prefix:      getEnv(EnvS3Prefix, "contexts/"),
			S3PathStyle:   getBoolEnv(EnvS3PathStyle, true),
			S3Compress:    getBoolEnv(EnvS3Compress, false),
		},

		Facebook: FacebookConfig{
			PageToken:   getEnv(EnvFacebookPageToken, ""),
			VerifyToken: getEnv(EnvFacebookVerifyToken, ""),
			AppSecret:   getEnv(EnvFacebookAppSecret, ""),
			GraphURL:    getEnv(EnvFacebookGraphURL, "https://graph.facebook.com/v2.6"),
			Subscribe:   getBoolEnv(EnvFacebookSubscribe, false),
		},

		Telegram: TelegramConfig{
			Token:         getEnv(EnvTelegramToken, ""),
			WebhookSecret: getEnv(EnvTelegramWebhookSecret, ""),
		},

		Line: LineConfig{
			ChannelAccessToken: getEnv(EnvLineChannelAccessToken, ""),
			ChannelSecret:      getEnv(EnvLineChannelSecret, ""),
		},

		NLU: NLUConfig{
			Driver:       strings.ToLower(getEnv(EnvNLUDriver, NLUNone)),
			Intents:      getListEnv(EnvNLUIntents),
			LUISAppID:    getEnv(EnvLUISAppID, ""),
			LUISKey:      getEnv(EnvLUISKey, ""),
			LUISEndpoint: getEnv(EnvLUISEndpoint, "https://api.projectoxford.ai"),
			WitToken:     getEnv(EnvWitToken, ""),
			WitVersion:   getEnv(EnvWitVersion, "20160330"),
			LLMAPIKey:    getEnv(EnvLLMAPIKey, ""),
			LLMBaseURL:   getEnv(EnvLLMBaseURL, ""),
			LLMModel:     getEnv(EnvLLMModel, "gpt-4o-mini"),
			GeminiAPIKey: getEnv(EnvGeminiAPIKey, ""),
			GeminiModel:  getEnv(EnvGeminiModel, "gemini-2.5-flash-lite"),
		},

		Sentry: SentryConfig{
			Enabled:     getBoolEnv(EnvSentryEnabled, false),
			Token:       getEnv(EnvSentryToken, ""),
			Host:        getEnv(EnvSentryHost, ""),
			Environment: getEnv(EnvSentryEnvironment, "production"),
			SampleRate:  getFloatEnv(EnvSentrySampleRate, 1.0),
		},

		BetterStack: BetterStackConfig{
			Enabled:  getBoolEnv(EnvBetterStackEnabled, false),
			Token:    getEnv(EnvBetterStackToken, ""),
			Endpoint: getEnv(EnvBetterStackEndpoint, ""),
		},

		Metrics: MetricsConfig{
			AuthEnabled: getBoolEnv(EnvMetricsAuthEnabled, false),
			Username:    getEnv(EnvMetricsUsername, "prometheus"),
			Password:    getEnv(EnvMetricsPassword, ""),
		},

		// Bot Configuration
		Bot: BotConfig{
			WebhookTimeout:            getDurationEnv(EnvWebhookTimeout, WebhookProcessing),
			UserRateLimitBurst:        getFloatEnv(EnvUserRateBurst, 15.0),
			UserRateLimitRefillPerSec: getFloatEnv(EnvUserRateRefill, 0.5),
			NLUBurstTokens:            getFloatEnv(EnvNLURateBurst, 40.0),
			NLURefillPerHour:          getFloatEnv(EnvNLURateRefill, 20.0),
			NLUDailyLimit:             getIntEnv(EnvNLURateDaily, 200),
		},
	}

	// Validate configuration
	if err := cfg.ValidateForMode(mode); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	return c.ValidateForMode(ServerMode)
}

// ValidateForMode checks the settings mode needs.
func (c *Config) ValidateForMode(mode Mode) error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvPort))
	}
	if mode == ServerMode && !c.FacebookEnabled() && !c.TelegramEnabled() && !c.LineEnabled() {
		errs = append(errs, fmt.Errorf("at least one platform is required: set %s, %s or %s",
			EnvFacebookPageToken, EnvTelegramToken, EnvLineChannelAccessToken))
	}
	if c.FacebookEnabled() && c.Facebook.VerifyToken == "" {
		errs = append(errs, fmt.Errorf("%s is required when Facebook is enabled", EnvFacebookVerifyToken))
	}
	if (c.Line.ChannelAccessToken == "") != (c.Line.ChannelSecret == "") {
		errs = append(errs, fmt.Errorf("%s and %s must be set together", EnvLineChannelAccessToken, EnvLineChannelSecret))
	}
	if err := c.Store.Validate(c.DataDir); err != nil {
		errs = append(errs, fmt.Errorf("store config: %w", err))
	}
	if err := c.NLU.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("nlu config: %w", err))
	}
	if err := c.Bot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bot config: %w", err))
	}
	if c.Sentry.Enabled && (c.Sentry.Token == "" || c.Sentry.Host == "") {
		errs = append(errs, fmt.Errorf("%s and %s are required when Sentry is enabled", EnvSentryToken, EnvSentryHost))
	}
	if c.Sentry.SampleRate < 0 || c.Sentry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("%s must be between 0 and 1, got %v", EnvSentrySampleRate, c.Sentry.SampleRate))
	}
	if c.BetterStack.Enabled && c.BetterStack.Token == "" {
		errs = append(errs, fmt.Errorf("%s is required when Better Stack is enabled", EnvBetterStackToken))
	}
	if c.Metrics.AuthEnabled && c.Metrics.Password == "" {
		errs = append(errs, fmt.Errorf("%s is required when metrics auth is enabled", EnvMetricsPassword))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the backend-specific settings.
func (s StoreConfig) Validate(dataDir string) error {
	switch s.Kind {
	case StoreSQLite:
		if dataDir == "" {
			return fmt.Errorf("%s is required for the sqlite store", EnvDataDir)
		}
	case StoreS3:
		var errs []error
		if s.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("%s is required for the s3 store", EnvS3Bucket))
		}
		if (s.S3AccessKeyID == "") != (s.S3SecretKey == "") {
			errs = append(errs, fmt.Errorf("%s and %s must be set together", EnvS3AccessKeyID, EnvS3SecretKey))
		}
		return errors.Join(errs...)
	case StoreMemory:
	default:
		return fmt.Errorf("%s must be %q, %q or %q, got %q", EnvContextStore, StoreSQLite, StoreS3, StoreMemory, s.Kind)
	}
	return nil
}

// Validate checks that the selected driver has its credentials.
func (n NLUConfig) Validate() error {
	switch n.Driver {
	case NLUNone:
		return nil
	case NLULUIS:
		if n.LUISAppID == "" || n.LUISKey == "" {
			return fmt.Errorf("%s and %s are required for the luis driver", EnvLUISAppID, EnvLUISKey)
		}
	case NLUWit:
		if n.WitToken == "" {
			return fmt.Errorf("%s is required for the wit driver", EnvWitToken)
		}
	case NLUOpenAI:
		if n.LLMAPIKey == "" {
			return fmt.Errorf("%s is required for the openai driver", EnvLLMAPIKey)
		}
		if len(n.Intents) == 0 {
			return fmt.Errorf("%s is required for the openai driver", EnvNLUIntents)
		}
	case NLUGemini:
		if n.GeminiAPIKey == "" {
			return fmt.Errorf("%s is required for the gemini driver", EnvGeminiAPIKey)
		}
		if len(n.Intents) == 0 {
			return fmt.Errorf("%s is required for the gemini driver", EnvNLUIntents)
		}
	default:
		return fmt.Errorf("unknown %s %q", EnvNLUDriver, n.Driver)
	}
	return nil
}

// Validate checks rate limit and timeout bounds.
func (b BotConfig) Validate() error {
	var errs []error
	if b.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvWebhookTimeout, b.WebhookTimeout))
	}
	if b.UserRateLimitBurst <= 0 || b.UserRateLimitRefillPerSec <= 0 {
		errs = append(errs, errors.New("user rate limit burst and refill must be positive"))
	}
	if b.NLUBurstTokens <= 0 || b.NLURefillPerHour <= 0 {
		errs = append(errs, errors.New("nlu rate limit burst and refill must be positive"))
	}
	if b.NLUDailyLimit < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvNLURateDaily, b.NLUDailyLimit))
	}
	return errors.Join(errs...)
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated environment variable, dropping blanks.
func getListEnv(key string) []string {
	var out []string
	for part := range strings.SplitSeq(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "contexts.db")
}

// FacebookEnabled reports whether the Messenger webhook should be mounted.
func (c *Config) FacebookEnabled() bool {
	return c.Facebook.PageToken != ""
}

// TelegramEnabled reports whether the Telegram webhook should be mounted.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != ""
}

// LineEnabled reports whether the LINE webhook should be mounted.
func (c *Config) LineEnabled() bool {
	return c.Line.ChannelAccessToken != "" && c.Line.ChannelSecret != ""
}
