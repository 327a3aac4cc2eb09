package facebook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/calamars-bot/calamars-go/internal/logger"
	"github.com/calamars-bot/calamars-go/internal/message"
	"github.com/calamars-bot/calamars-go/internal/metrics"
	"github.com/calamars-bot/calamars-go/internal/webhook"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="

	// maxBodyBytes bounds the webhook payload read into memory.
	maxBodyBytes = 1 << 20

	wrongTokenMessage = "Error, wrong validation token"
)

// Listener observes one raw messaging item.
type Listener func(ctx context.Context, item map[string]any)

// Listeners are optional callbacks fired for every messaging item in a
// webhook batch. OnUpdate sees every item; the others fire when their key
// (optin, message, delivery, postback) is present on the item.
type Listeners struct {
	OnUpdate         Listener
	OnAuthentication Listener
	OnMessage        Listener
	OnDelivery       Listener
	OnPostback       Listener
}

// Handler serves the Messenger webhook.
type Handler struct {
	verifyToken string
	appSecret   []byte
	pageToken   string
	client      *Client
	dispatcher  *webhook.Dispatcher
	listeners   Listeners
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

// HandlerConfig holds configuration for creating a new Handler
type HandlerConfig struct {
	VerifyToken string
	AppSecret   string // Empty disables signature verification
	PageToken   string
	Client      *Client
	Dispatcher  *webhook.Dispatcher
	Listeners   Listeners
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
}

type payload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        any              `json:"id"`
	Time      any              `json:"time"`
	Messaging []map[string]any `json:"messaging"`
}

// NewHandler creates a new Messenger webhook handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("facebook: dispatcher is required")
	}
	if cfg.VerifyToken == "" {
		return nil, errors.New("facebook: verify token is required")
	}
	client := cfg.Client
	if client == nil {
		client = NewClient("", nil)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.New("info")
	}
	return &Handler{
		verifyToken: cfg.VerifyToken,
		appSecret:   []byte(cfg.AppSecret),
		pageToken:   cfg.PageToken,
		client:      client,
		dispatcher:  cfg.Dispatcher,
		listeners:   cfg.Listeners,
		logger:      log.WithModule("facebook"),
		metrics:     cfg.Metrics,
	}, nil
}

// Verify answers the subscription handshake (GET).
func (h *Handler) Verify(c *gin.Context) {
	if c.Query("hub.verify_token") != h.verifyToken {
		h.logger.Warn("Webhook verification failed: wrong token")
		h.metrics.RecordHTTPError("verify_token", "facebook")
		c.String(http.StatusForbidden, wrongTokenMessage)
		return
	}
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// Receive accepts a webhook batch (POST). The response is written before
// any item is processed.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		h.logger.WithError(err).Error("Failed to read webhook body")
		c.Status(http.StatusBadRequest)
		return
	}

	if !h.validSignature(body, c.GetHeader(signatureHeader)) {
		h.logger.Warn("Invalid webhook signature")
		h.metrics.RecordHTTPError("invalid_signature", "facebook")
		c.Status(http.StatusUnauthorized)
		return
	}

	var p payload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		h.logger.WithError(err).Warn("Malformed webhook payload")
		h.metrics.RecordHTTPError("bad_payload", "facebook")
		c.Status(http.StatusBadRequest)
		return
	}

	if len(p.Entry) == 0 {
		c.String(http.StatusOK, "false")
		return
	}
	c.String(http.StatusOK, "true")

	var items []map[string]any
	for _, e := range p.Entry {
		items = append(items, e.Messaging...)
	}
	if len(items) == 0 {
		return
	}

	h.dispatcher.Go(c.Request.Context(), func(ctx context.Context) {
		for _, item := range items {
			h.handleItem(ctx, item)
		}
	})
}

func (h *Handler) handleItem(ctx context.Context, item map[string]any) {
	h.fire(ctx, "update", h.listeners.OnUpdate, item)

	known := false
	for _, l := range []struct {
		key string
		fn  Listener
	}{
		{"message", h.listeners.OnMessage},
		{"optin", h.listeners.OnAuthentication},
		{"delivery", h.listeners.OnDelivery},
		{"postback", h.listeners.OnPostback},
	} {
		if message.Truthy(item[l.key]) {
			known = true
			h.fire(ctx, l.key, l.fn, item)
		}
	}
	if !known {
		h.logger.WithField("keys", strings.Join(slices.Sorted(maps.Keys(item)), ",")).Debug("Skipping unknown messaging item")
		return
	}

	if msg := toMessage(item); msg != nil {
		h.dispatcher.Deliver(ctx, webhook.Delivery{Message: msg, Reply: h.replyTo(msg.SenderID)})
	}
}

// fire calls a listener, isolating its panic so that the rest of the batch
// still runs.
func (h *Handler) fire(ctx context.Context, name string, fn Listener, item map[string]any) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithField("listener", name).
				WithField("panic", fmt.Sprint(r)).
				Error("Panic in webhook listener")
		}
	}()
	fn(ctx, item)
}

// toMessage normalizes message and postback items. Postback payloads are
// routed like typed text.
func toMessage(item map[string]any) *message.Message {
	if _, ok := item["message"]; ok {
		return message.Normalize(item)
	}
	postback, ok := item["postback"].(map[string]any)
	if !ok {
		return nil
	}
	msg := message.Normalize(item)
	if msg == nil {
		return nil
	}
	if text, ok := postback["payload"].(string); ok {
		msg.Text = &text
	}
	return msg
}

func (h *Handler) replyTo(userID string) webhook.ReplyFunc {
	return func(ctx context.Context, texts []string) error {
		for _, text := range texts {
			if _, err := h.client.SendText(ctx, userID, text, h.pageToken); err != nil {
				return err
			}
		}
		return nil
	}
}

func (h *Handler) validSignature(body []byte, header string) bool {
	if len(h.appSecret) == 0 {
		return true
	}
	sig, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.appSecret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
