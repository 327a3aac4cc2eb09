// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort            = "CALAMARS_PORT"
	EnvLogLevel        = "CALAMARS_LOG_LEVEL"
	EnvShutdownTimeout = "CALAMARS_SHUTDOWN_TIMEOUT"
	EnvServerName      = "CALAMARS_SERVER_NAME"

	// Routing
	EnvRoutesFile    = "CALAMARS_ROUTES_FILE"
	EnvFallbackReply = "CALAMARS_FALLBACK_REPLY"

	// Webhook
	EnvWebhookTimeout = "CALAMARS_WEBHOOK_TIMEOUT"

	// Rate Limits
	EnvUserRateBurst  = "CALAMARS_USER_RATE_BURST"
	EnvUserRateRefill = "CALAMARS_USER_RATE_REFILL"
	EnvNLURateBurst   = "CALAMARS_NLU_RATE_BURST"
	EnvNLURateRefill  = "CALAMARS_NLU_RATE_REFILL"
	EnvNLURateDaily   = "CALAMARS_NLU_RATE_DAILY"

	// Context Store
	EnvContextStore  = "CALAMARS_CONTEXT_STORE"
	EnvDataDir       = "CALAMARS_DATA_DIR"
	EnvS3Endpoint    = "CALAMARS_S3_ENDPOINT"
	EnvS3Region      = "CALAMARS_S3_REGION"
	EnvS3AccessKeyID = "CALAMARS_S3_ACCESS_KEY_ID"
	EnvS3SecretKey   = "CALAMARS_S3_SECRET_ACCESS_KEY"
	EnvS3Bucket      = "CALAMARS_S3_BUCKET"
	EnvS3Prefix      = "CALAMARS_S3_PREFIX"
	EnvS3PathStyle   = "CALAMARS_S3_PATH_STYLE"
	EnvS3Compress    = "CALAMARS_S3_COMPRESS"

	// Facebook Messenger
	EnvFacebookPageToken   = "CALAMARS_FACEBOOK_PAGE_TOKEN"
	EnvFacebookVerifyToken = "CALAMARS_FACEBOOK_VERIFY_TOKEN"
	EnvFacebookAppSecret   = "CALAMARS_FACEBOOK_APP_SECRET"
	EnvFacebookGraphURL    = "CALAMARS_FACEBOOK_GRAPH_URL"
	EnvFacebookSubscribe   = "CALAMARS_FACEBOOK_SUBSCRIBE"

	// Telegram
	EnvTelegramToken         = "CALAMARS_TELEGRAM_TOKEN"
	EnvTelegramWebhookSecret = "CALAMARS_TELEGRAM_WEBHOOK_SECRET"

	// LINE
	EnvLineChannelAccessToken = "CALAMARS_LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "CALAMARS_LINE_CHANNEL_SECRET"

	// NLU Feature
	EnvNLUDriver    = "CALAMARS_NLU_DRIVER"
	EnvNLUIntents   = "CALAMARS_NLU_INTENTS"
	EnvLUISAppID    = "CALAMARS_LUIS_APP_ID"
	EnvLUISKey      = "CALAMARS_LUIS_SUBSCRIPTION_KEY"
	EnvLUISEndpoint = "CALAMARS_LUIS_ENDPOINT"
	EnvWitToken     = "CALAMARS_WIT_SERVER_TOKEN"
	EnvWitVersion   = "CALAMARS_WIT_VERSION"
	EnvLLMAPIKey    = "CALAMARS_LLM_API_KEY"
	EnvLLMBaseURL   = "CALAMARS_LLM_BASE_URL"
	EnvLLMModel     = "CALAMARS_LLM_MODEL"
	EnvGeminiAPIKey = "CALAMARS_GEMINI_API_KEY"
	EnvGeminiModel  = "CALAMARS_GEMINI_MODEL"

	// Sentry Feature
	EnvSentryEnabled     = "CALAMARS_SENTRY_ENABLED"
	EnvSentryToken       = "CALAMARS_SENTRY_TOKEN"
	EnvSentryHost        = "CALAMARS_SENTRY_HOST"
	EnvSentryEnvironment = "CALAMARS_SENTRY_ENVIRONMENT"
	EnvSentrySampleRate  = "CALAMARS_SENTRY_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackEnabled  = "CALAMARS_BETTERSTACK_ENABLED"
	EnvBetterStackToken    = "CALAMARS_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "CALAMARS_BETTERSTACK_ENDPOINT"

	// Metrics Auth Feature
	EnvMetricsAuthEnabled = "CALAMARS_METRICS_AUTH_ENABLED"
	EnvMetricsUsername    = "CALAMARS_METRICS_USERNAME"
	EnvMetricsPassword    = "CALAMARS_METRICS_PASSWORD"
)
