package config

import (
	"strings"
	"testing"
	"time"
)

// clearPlatforms blanks every platform credential so tests start from a
// known state regardless of the caller's environment.
func clearPlatforms(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvFacebookPageToken, EnvFacebookVerifyToken,
		EnvTelegramToken,
		EnvLineChannelAccessToken, EnvLineChannelSecret,
		EnvContextStore, EnvNLUDriver,
	} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	clearPlatforms(t)
	t.Setenv(EnvTelegramToken, "123:abc")
	t.Setenv(EnvNLUIntents, "greet, bye ,,")
	t.Setenv(EnvS3Compress, "true")
	t.Setenv(EnvWebhookTimeout, "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("Telegram.Token = %q, want %q", cfg.Telegram.Token, "123:abc")
	}
	if !cfg.TelegramEnabled() || cfg.FacebookEnabled() || cfg.LineEnabled() {
		t.Errorf("enabled platforms = fb:%v tg:%v line:%v", cfg.FacebookEnabled(), cfg.TelegramEnabled(), cfg.LineEnabled())
	}

	// Check defaults
	if cfg.Port != "10000" {
		t.Errorf("Expected default port '10000', got '%s'", cfg.Port)
	}
	if cfg.Store.Kind != StoreSQLite {
		t.Errorf("Store.Kind = %q, want %q", cfg.Store.Kind, StoreSQLite)
	}
	if cfg.NLU.WitVersion != "20160330" {
		t.Errorf("NLU.WitVersion = %q", cfg.NLU.WitVersion)
	}
	if cfg.Bot.WebhookTimeout != 5*time.Second {
		t.Errorf("Bot.WebhookTimeout = %v, want 5s", cfg.Bot.WebhookTimeout)
	}
	if !cfg.Store.S3Compress {
		t.Error("Store.S3Compress = false, want true")
	}
	if got := strings.Join(cfg.NLU.Intents, "|"); got != "greet|bye" {
		t.Errorf("NLU.Intents = %q, want %q", got, "greet|bye")
	}
}

func TestLoad_NoPlatform(t *testing.T) {
	clearPlatforms(t)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() succeeded without any platform")
	}
	if !strings.Contains(err.Error(), "at least one platform") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadForMode_Tool(t *testing.T) {
	clearPlatforms(t)
	t.Setenv(EnvContextStore, StoreMemory)

	cfg, err := LoadForMode(ToolMode)
	if err != nil {
		t.Fatalf("LoadForMode(ToolMode) failed: %v", err)
	}
	if cfg.Store.Kind != StoreMemory {
		t.Errorf("Store.Kind = %q, want %q", cfg.Store.Kind, StoreMemory)
	}

	t.Setenv(EnvContextStore, "redis")
	if _, err := LoadForMode(ToolMode); err == nil {
		t.Error("LoadForMode(ToolMode) accepted an unknown store")
	}
}

func validConfig() *Config {
	return &Config{
		Port:    "10000",
		DataDir: "/tmp/data",
		Store:   StoreConfig{Kind: StoreSQLite},
		Telegram: TelegramConfig{
			Token: "t",
		},
		Sentry: SentryConfig{SampleRate: 1},
		Bot: BotConfig{
			WebhookTimeout:            WebhookProcessing,
			UserRateLimitBurst:        15,
			UserRateLimitRefillPerSec: 0.5,
			NLUBurstTokens:            40,
			NLURefillPerHour:          20,
			NLUDailyLimit:             200,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name: "facebook without verify token",
			mutate: func(c *Config) {
				c.Facebook.PageToken = "page"
			},
			errContains: EnvFacebookVerifyToken,
		},
		{
			name: "line secret without token",
			mutate: func(c *Config) {
				c.Line.ChannelSecret = "secret"
			},
			errContains: EnvLineChannelAccessToken,
		},
		{
			name: "s3 without bucket",
			mutate: func(c *Config) {
				c.Store.Kind = StoreS3
			},
			errContains: EnvS3Bucket,
		},
		{
			name: "unknown store",
			mutate: func(c *Config) {
				c.Store.Kind = "redis"
			},
			errContains: EnvContextStore,
		},
		{
			name: "luis without key",
			mutate: func(c *Config) {
				c.NLU.Driver = NLULUIS
				c.NLU.LUISAppID = "app"
			},
			errContains: EnvLUISKey,
		},
		{
			name: "openai without intents",
			mutate: func(c *Config) {
				c.NLU.Driver = NLUOpenAI
				c.NLU.LLMAPIKey = "sk"
			},
			errContains: EnvNLUIntents,
		},
		{
			name: "unknown nlu driver",
			mutate: func(c *Config) {
				c.NLU.Driver = "rasa"
			},
			errContains: "rasa",
		},
		{
			name: "sentry without host",
			mutate: func(c *Config) {
				c.Sentry.Enabled = true
				c.Sentry.Token = "tok"
			},
			errContains: EnvSentryHost,
		},
		{
			name: "metrics auth without password",
			mutate: func(c *Config) {
				c.Metrics.AuthEnabled = true
			},
			errContains: EnvMetricsPassword,
		},
		{
			name: "negative daily limit",
			mutate: func(c *Config) {
				c.Bot.NLUDailyLimit = -1
			},
			errContains: EnvNLURateDaily,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.errContains)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Port = ""
	cfg.Telegram.Token = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, EnvPort) || !strings.Contains(msg, "at least one platform") {
		t.Errorf("expected both errors, got %v", msg)
	}
}

func TestSQLitePath(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/calamars"}
	if got := cfg.SQLitePath(); got != "/var/lib/calamars/contexts.db" {
		t.Errorf("SQLitePath() = %q", got)
	}
}
