package sentry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfig_DSN(t *testing.T) {
	t.Parallel()
	cfg := Config{Token: "tok", Host: "errors.betterstack.com"}
	if got := cfg.DSN(); got != "https://tok@errors.betterstack.com/1" {
		t.Errorf("DSN() = %q", got)
	}
}

func TestInitialize_MissingHost(t *testing.T) {
	t.Parallel()
	if err := Initialize(Config{Token: "test-token"}); err == nil {
		t.Error("Expected error when host is missing")
	}
}

// Sentry uses global state, so the remaining tests are sequential.

func TestInitialize_EmptyToken(t *testing.T) {
	if err := Initialize(Config{}); err != nil {
		t.Errorf("Expected nil error for empty token, got %v", err)
	}

	// Capture helpers are no-ops while disabled.
	ctx := context.Background()
	CaptureException(ctx, errors.New("ignored"))
	CaptureWithTags(ctx, errors.New("ignored"), map[string]string{"platform": "telegram"})
	RecoverPanic(ctx, "ignored")
}

func TestInitialize_ValidConfig(t *testing.T) {
	err := Initialize(Config{
		Token:       "test-token",
		Host:        "errors.betterstack.com",
		Environment: "test",
		Release:     "dev",
	})
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	if !IsEnabled() {
		t.Error("Expected IsEnabled() to return true after initialization")
	}

	ctx := context.Background()
	CaptureWithTags(ctx, errors.New("send failed"), map[string]string{"platform": "line"})
	RecoverPanic(ctx, "boom")

	Flush(100 * time.Millisecond)
}
