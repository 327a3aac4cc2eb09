package logger

import (
	"context"
	"log/slog"

	"github.com/calamars-bot/calamars-go/internal/ctxutil"
)

// ContextHandler is a slog.Handler that copies tracing values from the
// context (user, chat, request, platform and message ids) onto each record
// before delegating to the wrapped handler.
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler creates a new ContextHandler that wraps the provided handler.
func NewContextHandler(handler slog.Handler) *ContextHandler {
	return &ContextHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds context values as attributes and forwards the record.
// Canceling ctx does not affect record processing (per slog.Handler contract).
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if userID := ctxutil.GetUserID(ctx); userID != "" {
		r.AddAttrs(slog.String("user_id", userID))
	}
	if chatID := ctxutil.GetChatID(ctx); chatID != "" {
		r.AddAttrs(slog.String("chat_id", chatID))
	}
	if requestID, ok := ctxutil.GetRequestID(ctx); ok && requestID != "" {
		r.AddAttrs(slog.String("request_id", requestID))
	}
	if platform := ctxutil.GetPlatform(ctx); platform != "" {
		r.AddAttrs(slog.String("platform", platform))
	}
	if messageID := ctxutil.GetMessageID(ctx); messageID != "" {
		r.AddAttrs(slog.String("message_id", messageID))
	}

	return h.handler.Handle(ctx, r)
}

// WithAttrs returns a new ContextHandler whose attributes consist of
// both the receiver's attributes and the arguments.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a new ContextHandler with the given group name prepended
// to the current group name.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{handler: h.handler.WithGroup(name)}
}
