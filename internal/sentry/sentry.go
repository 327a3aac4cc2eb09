// Package sentry provides Sentry SDK initialization for Better Stack error
// tracking, plus helpers that attach chat context to captured events.
package sentry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// Config holds Sentry configuration for Better Stack integration.
type Config struct {
	// Token is the Better Stack Errors application token.
	Token string

	// Host is the Better Stack Errors ingesting host (e.g., "errors.betterstack.com").
	Host string

	Environment string
	Release     string

	// SampleRate controls error sampling (0.0-1.0, default 1.0 = 100%).
	SampleRate float64

	Debug bool
}

// DSN builds the Better Stack DSN: https://$TOKEN@$HOST/1.
// The project ID is required by the SDK but ignored by Better Stack.
func (c Config) DSN() string {
	return fmt.Sprintf("https://%s@%s/1", c.Token, c.Host)
}

// Initialize sets up the Sentry SDK. An empty Token disables Sentry and
// returns nil.
func Initialize(cfg Config) error {
	if cfg.Token == "" {
		return nil
	}
	if cfg.Host == "" {
		return fmt.Errorf("sentry host is required when token is provided")
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN(),
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
	})
}

// Flush waits for buffered events to be sent to the server.
// Returns true if all events were sent within the timeout.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// IsEnabled returns true if Sentry is initialized and active.
func IsEnabled() bool {
	return sentry.CurrentHub().Client() != nil
}

func hubFrom(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// CaptureException captures an error using the hub attached to ctx, if any.
func CaptureException(ctx context.Context, err error) {
	if err == nil || !IsEnabled() {
		return
	}
	hubFrom(ctx).CaptureException(err)
}

// CaptureWithTags captures an error with extra tags (platform, chat id, ...)
// scoped to this event only.
func CaptureWithTags(ctx context.Context, err error, tags map[string]string) {
	if err == nil || !IsEnabled() {
		return
	}
	hub := hubFrom(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}

// RecoverPanic reports a recovered panic value.
func RecoverPanic(ctx context.Context, recovered any) {
	if recovered == nil || !IsEnabled() {
		return
	}
	hubFrom(ctx).RecoverWithContext(ctx, recovered)
}
