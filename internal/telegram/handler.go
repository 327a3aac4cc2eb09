package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calamars-bot/calamars-go/internal/logger"
	"github.com/calamars-bot/calamars-go/internal/message"
	"github.com/calamars-bot/calamars-go/internal/metrics"
	"github.com/calamars-bot/calamars-go/internal/webhook"
)

const (
	secretHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxBodyBytes = 1 << 20
)

// TextSender delivers reply texts to a chat.
type TextSender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// Handler serves the Telegram webhook.
type Handler struct {
	secret     string
	sender     TextSender
	dispatcher *webhook.Dispatcher
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// HandlerConfig holds configuration for creating a new Handler
type HandlerConfig struct {
	WebhookSecret string // Empty disables the secret token check
	Sender        TextSender
	Dispatcher    *webhook.Dispatcher
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
}

// NewHandler creates a new Telegram webhook handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("telegram: dispatcher is required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("telegram: sender is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.New("info")
	}
	return &Handler{
		secret:     cfg.WebhookSecret,
		sender:     cfg.Sender,
		dispatcher: cfg.Dispatcher,
		logger:     log.WithModule("telegram"),
		metrics:    cfg.Metrics,
	}, nil
}

// Handle is the Gin handler for the webhook endpoint
func (h *Handler) Handle(c *gin.Context) {
	if h.secret != "" && !webhook.SecretEqual(c.GetHeader(secretHeader), h.secret) {
		h.logger.Warn("Invalid webhook secret token")
		h.metrics.RecordHTTPError("invalid_secret", "telegram")
		c.Status(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		h.logger.WithError(err).Error("Failed to read webhook body")
		c.Status(http.StatusBadRequest)
		return
	}

	msg, err := message.NormalizeJSON(body)
	if err != nil {
		h.logger.WithError(err).Warn("Malformed webhook payload")
		h.metrics.RecordHTTPError("bad_payload", "telegram")
		c.Status(http.StatusBadRequest)
		return
	}

	// Telegram redelivers anything that is not answered with 2xx
	c.Status(http.StatusOK)

	if msg == nil {
		// Edited messages, callback queries and other update kinds
		h.metrics.RecordWebhook(string(message.PlatformTelegram), webhook.StatusIgnored, 0)
		return
	}

	h.dispatcher.Submit(c.Request.Context(), []webhook.Delivery{{Message: msg, Reply: h.replyTo(msg.ChatID)}})
}

func (h *Handler) replyTo(chatID string) webhook.ReplyFunc {
	return func(ctx context.Context, texts []string) error {
		for _, text := range texts {
			if err := h.sender.SendText(ctx, chatID, text); err != nil {
				return err
			}
		}
		return nil
	}
}
