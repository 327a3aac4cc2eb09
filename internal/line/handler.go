// Package line implements the LINE Messaging API webhook. Text messages and
// postbacks are normalized and answered with the event's reply token.
package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/calamars-bot/calamars-go/internal/config"
	"github.com/calamars-bot/calamars-go/internal/ctxutil"
	"github.com/calamars-bot/calamars-go/internal/logger"
	"github.com/calamars-bot/calamars-go/internal/message"
	"github.com/calamars-bot/calamars-go/internal/metrics"
	"github.com/calamars-bot/calamars-go/internal/ratelimit"
	calwebhook "github.com/calamars-bot/calamars-go/internal/webhook"
)

// LINE API constraints
const (
	maxMessagesPerReply = 5
	maxEventsPerWebhook = 100
	maxTextLength       = 5000

	// loadingSeconds must be a multiple of 5 between 5 and 60.
	loadingSeconds = 60
)

// Handler handles LINE webhook events
type Handler struct {
	channelSecret string
	client        *messaging_api.MessagingApiAPI
	dispatcher    *calwebhook.Dispatcher
	limiter       *ratelimit.Bucket // Global limit on outbound API calls
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

// HandlerConfig holds configuration for creating a new Handler
type HandlerConfig struct {
	ChannelSecret string
	ChannelToken  string
	APIEndpoint   string // Empty uses the SDK default
	HTTPClient    *http.Client
	GlobalRPS     float64 // Outbound calls per second; 0 means 100
	Dispatcher    *calwebhook.Dispatcher
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("line: dispatcher is required")
	}
	if cfg.ChannelSecret == "" || cfg.ChannelToken == "" {
		return nil, errors.New("line: channel secret and token are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.PlatformAPIRequest}
	}
	opts := []messaging_api.MessagingApiAPIOption{messaging_api.WithHTTPClient(httpClient)}
	if cfg.APIEndpoint != "" {
		opts = append(opts, messaging_api.WithEndpoint(cfg.APIEndpoint))
	}
	client, err := messaging_api.NewMessagingApiAPI(cfg.ChannelToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}

	rps := cfg.GlobalRPS
	if rps <= 0 {
		rps = 100
	}
	log := cfg.Logger
	if log == nil {
		log = logger.New("info")
	}

	return &Handler{
		channelSecret: cfg.ChannelSecret,
		client:        client,
		dispatcher:    cfg.Dispatcher,
		limiter:       ratelimit.New(rps, rps),
		logger:        log.WithModule("line"),
		metrics:       cfg.Metrics,
	}, nil
}

// Handle is the Gin handler for the webhook endpoint
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			h.metrics.RecordHTTPError("invalid_signature", "line")
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	// LINE expects 200 before any processing
	c.Status(http.StatusOK)

	events := cb.Events
	if len(events) > maxEventsPerWebhook {
		h.logger.WithField("event_count", len(events)).
			WithField("limit", maxEventsPerWebhook).
			Warn("Too many events in webhook batch; truncating")
		events = events[:maxEventsPerWebhook]
	}

	var batch []inbound
	for _, event := range events {
		in, ok := convert(event)
		if !ok {
			h.metrics.RecordWebhook(string(message.PlatformLINE), calwebhook.StatusIgnored, 0)
			continue
		}
		batch = append(batch, in)
	}
	if len(batch) == 0 {
		return
	}

	h.dispatcher.Go(c.Request.Context(), func(ctx context.Context) {
		for _, in := range batch {
			h.process(ctx, in)
		}
	})
}

func (h *Handler) process(ctx context.Context, in inbound) {
	if in.eventID != "" {
		ctx = ctxutil.WithRequestID(ctx, in.eventID)
	}
	if in.redelivery {
		h.logger.WithField("event_id", in.eventID).Debug("Processing redelivered event")
	}

	// Loading animation is only supported in one-on-one chats
	if in.personal {
		if err := h.showLoading(in.msg.ChatID); err != nil {
			h.logger.WithError(err).Debug("Failed to show loading animation")
		}
	}

	h.dispatcher.Deliver(ctx, calwebhook.Delivery{Message: in.msg, Reply: h.replyWith(in.replyToken)})
}

func (h *Handler) showLoading(chatID string) error {
	if !h.limiter.Allow() {
		return errors.New("global rate limit exceeded")
	}
	_, err := h.client.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: loadingSeconds,
	})
	return err
}

func (h *Handler) replyWith(replyToken string) calwebhook.ReplyFunc {
	return func(ctx context.Context, texts []string) error {
		if replyToken == "" {
			return errors.New("line: event has no reply token")
		}
		if !h.limiter.Allow() {
			h.logger.Warn("Global rate limit exceeded; waiting")
			h.metrics.RecordRateLimiterDrop("line_global")
			if err := h.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("line: wait for rate limit: %w", err)
			}
		}

		messages := make([]messaging_api.MessageInterface, 0, maxMessagesPerReply)
		for _, text := range fitReply(texts) {
			messages = append(messages, &messaging_api.TextMessage{Text: text})
		}
		if _, err := h.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
			ReplyToken: replyToken,
			Messages:   messages,
		}); err != nil {
			if strings.Contains(err.Error(), "Invalid reply token") {
				h.logger.WithError(err).Debug("Reply token already used or expired")
			}
			return fmt.Errorf("line: reply: %w", err)
		}
		return nil
	}
}

// fitReply folds texts into at most maxMessagesPerReply messages: the
// overflow is joined into the last one and every text is cut to the
// per-message length limit.
func fitReply(texts []string) []string {
	n := min(len(texts), maxMessagesPerReply)
	out := make([]string, n)
	copy(out, texts[:n])
	if len(texts) > maxMessagesPerReply {
		out[n-1] = strings.Join(texts[n-1:], "\n\n")
	}
	for i, text := range out {
		if r := []rune(text); len(r) > maxTextLength {
			out[i] = string(r[:maxTextLength])
		}
	}
	return out
}
