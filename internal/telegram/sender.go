// Package telegram implements the Telegram Bot API webhook and sender.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/calamars-bot/calamars-go/internal/config"
	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
)

// Sender sends messages through the Bot API.
type Sender struct {
	bot *telego.Bot
}

// SenderConfig configures a Sender.
type SenderConfig struct {
	Token string
	// APIServer overrides https://api.telegram.org (local Bot API servers, tests).
	APIServer  string
	HTTPClient *http.Client
}

// NewSender creates a Sender. The token format is validated by telego.
func NewSender(cfg SenderConfig) (*Sender, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("telegram: %w: bot token", domerrors.ErrMissingCredentials)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.PlatformAPIRequest}
	}
	opts := []telego.BotOption{
		telego.WithHTTPClient(httpClient),
		telego.WithDiscardLogger(),
	}
	if cfg.APIServer != "" {
		opts = append(opts, telego.WithAPIServer(strings.TrimRight(cfg.APIServer, "/")))
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Sender{bot: bot}, nil
}

// SendText sends text to a chat. Numeric chat ids are sent as ids; anything
// else is treated as a channel username.
func (s *Sender) SendText(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		return domerrors.NewValidationError("chat_id", "cannot be empty")
	}
	if _, err := s.bot.SendMessage(ctx, tu.Message(chatRef(chatID), text)); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

func chatRef(chatID string) telego.ChatID {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tu.ID(id)
	}
	return tu.Username(chatID)
}
