// Package ctxutil provides type-safe context value management.
// Uses private key types to prevent collisions.
package ctxutil

import (
	"context"
)

type contextKey string

const (
	userIDKey    contextKey = "ctxutil.userID"
	chatIDKey    contextKey = "ctxutil.chatID"
	requestIDKey contextKey = "ctxutil.requestID"
	platformKey  contextKey = "ctxutil.platform"
	messageIDKey contextKey = "ctxutil.messageID"
)

// WithUserID adds the sender id of the message being handled.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from the context.
// Returns the user ID if found, empty string otherwise.
func GetUserID(ctx context.Context) string {
	return getString(ctx, userIDKey)
}

// WithChatID adds a chat ID to the context.
// The chat id keys both rate limiting and the context store.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey, chatID)
}

// GetChatID retrieves the chat ID from the context.
func GetChatID(ctx context.Context) string {
	return getString(ctx, chatIDKey)
}

// MustGetChatID retrieves the chat ID from the context.
// Panics if the chat ID is not found.
func MustGetChatID(ctx context.Context) string {
	chatID, ok := ctx.Value(chatIDKey).(string)
	if !ok || chatID == "" {
		panic("ctxutil: chatID not found")
	}
	return chatID
}

// WithRequestID adds a request ID to the context for tracing.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns the request ID and true if found, empty string and false otherwise.
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok
}

// WithPlatform adds the chat platform name to the context.
func WithPlatform(ctx context.Context, platform string) context.Context {
	return context.WithValue(ctx, platformKey, platform)
}

// GetPlatform retrieves the platform name from the context.
func GetPlatform(ctx context.Context) string {
	return getString(ctx, platformKey)
}

// WithMessageID adds the platform message id to the context.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, messageIDKey, messageID)
}

// GetMessageID retrieves the message id from the context.
func GetMessageID(ctx context.Context) string {
	return getString(ctx, messageIDKey)
}

func getString(ctx context.Context, key contextKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// PreserveTracing creates a detached context that preserves tracing values.
// The new context is independent of the parent's cancellation and deadlines.
//
// This function creates a fresh context.Background() and copies only tracing values,
// avoiding memory leaks from retaining parent context references (Go issue #64478).
//
// Use for webhook processing that continues after the HTTP response is sent.
func PreserveTracing(ctx context.Context) context.Context {
	newCtx := context.Background()

	if userID := GetUserID(ctx); userID != "" {
		newCtx = WithUserID(newCtx, userID)
	}
	if chatID := GetChatID(ctx); chatID != "" {
		newCtx = WithChatID(newCtx, chatID)
	}
	if requestID, ok := GetRequestID(ctx); ok && requestID != "" {
		newCtx = WithRequestID(newCtx, requestID)
	}
	if platform := GetPlatform(ctx); platform != "" {
		newCtx = WithPlatform(newCtx, platform)
	}
	if messageID := GetMessageID(ctx); messageID != "" {
		newCtx = WithMessageID(newCtx, messageID)
	}

	return newCtx
}
