// Package config provides centralized timeout constants for the application.
//
// Chat platforms expect webhook deliveries to be acknowledged quickly and
// retry on slow responses, so every webhook handler answers 200 right away
// and processes updates on a detached context bounded by WebhookProcessing.
package config

import "time"

// Webhook timeouts
const (
	// WebhookProcessing bounds the handling of a single inbound update,
	// including NLU calls, context store access and the outbound reply.
	WebhookProcessing = 30 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout for webhook requests.
	// Platforms send small JSON payloads.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout.
	WebhookHTTPWrite = 15 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// Outbound API timeouts
const (
	// PlatformAPIRequest is the HTTP client timeout for Graph, Telegram and
	// LINE API calls.
	PlatformAPIRequest = 10 * time.Second

	// NLURequest is the timeout for a single NLU driver query.
	NLURequest = 8 * time.Second
)

// Storage timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 5 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour

	// ObjectFetch bounds one object download shared by concurrent readers
	// of the same context.
	ObjectFetch = 10 * time.Second

	// ReadinessCheckTimeout bounds the store ping done by /readyz.
	ReadinessCheckTimeout = 3 * time.Second
)

// Background job intervals
const (
	// RateLimiterCleanupInterval is how often inactive per-chat limiters are cleaned.
	RateLimiterCleanupInterval = 5 * time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the default timeout for graceful server shutdown.
	GracefulShutdown = 30 * time.Second
)
