// Package bot turns normalized inbound messages into replies by running
// them through a router.Router.
//
// For every message the Processor applies the per-chat rate limit, binds
// the chat's Session, and routes the text with a *Turn as the router's
// extra context. NLU drivers are consulted lazily, only when a route
// predicate asks the Turn for its intent.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calamars-bot/calamars-go/internal/config"
	"github.com/calamars-bot/calamars-go/internal/contextstore"
	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
	"github.com/calamars-bot/calamars-go/internal/logger"
	"github.com/calamars-bot/calamars-go/internal/message"
	"github.com/calamars-bot/calamars-go/internal/metrics"
	"github.com/calamars-bot/calamars-go/internal/nlu"
	"github.com/calamars-bot/calamars-go/internal/ratelimit"
	"github.com/calamars-bot/calamars-go/internal/router"
)

// Processor handles the core logic of processing inbound messages.
// It orchestrates rate limiting, session tracking, NLU and routing.
type Processor struct {
	router        *router.Router
	store         contextstore.Store
	driver        nlu.Driver
	chatLimiter   *ratelimit.KeyedLimiter
	nluLimiter    *ratelimit.KeyedLimiter
	fallbackReply string
	nluTimeout    time.Duration
	logger        *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

// ProcessorConfig holds configuration for creating a new Processor.
// Only Router is required.
type ProcessorConfig struct {
	Router *router.Router
	// Store backs Turn.Session. Nil disables sessions.
	Store contextstore.Store
	// NLU is queried lazily by intent routes. Nil disables NLU.
	NLU nlu.Driver
	// ChatLimiter bounds messages per chat.
	ChatLimiter *ratelimit.KeyedLimiter
	// NLULimiter bounds NLU queries per chat.
	NLULimiter *ratelimit.KeyedLimiter
	// FallbackReply is sent when no route matches. Empty means stay silent.
	FallbackReply string
	// NLUTimeout bounds one NLU query. Zero means config.NLURequest.
	NLUTimeout time.Duration
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
}

// NewProcessor creates a new message processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Router == nil {
		return nil, errors.New("bot: router is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.New("info")
	}
	timeout := cfg.NLUTimeout
	if timeout <= 0 {
		timeout = config.NLURequest
	}
	return &Processor{
		router:        cfg.Router,
		store:         cfg.Store,
		driver:        cfg.NLU,
		chatLimiter:   cfg.ChatLimiter,
		nluLimiter:    cfg.NLULimiter,
		fallbackReply: cfg.FallbackReply,
		nluTimeout:    timeout,
		logger:        log.WithModule("bot"),
		metrics:       cfg.Metrics,
		now:           time.Now,
	}, nil
}

// Handle routes one message. It returns an empty Reply for echoes, for
// messages without text and when nothing matched and no fallback is set.
// Messages dropped by the chat rate limiter return errors.ErrRateLimitExceeded.
// Panics raised by route predicates or handlers are not recovered here.
func (p *Processor) Handle(ctx context.Context, msg *message.Message) (Reply, error) {
	if msg == nil || msg.IsEcho || !msg.HasText() {
		return Reply{}, nil
	}
	text := normalizeWhitespace(*msg.Text)
	if text == "" {
		return Reply{}, nil
	}

	if p.chatLimiter != nil && !p.chatLimiter.Allow(msg.ChatID) {
		return Reply{}, fmt.Errorf("chat %s: %w", msg.ChatID, domerrors.ErrRateLimitExceeded)
	}

	var session *Session
	if p.store != nil && msg.ChatID != "" {
		session = NewSession(p.store, SessionID(msg.Platform, msg.ChatID))
		p.touch(ctx, session, msg)
	}

	var classify func(context.Context, string) *nlu.Result
	if p.driver != nil {
		classify = func(ctx context.Context, text string) *nlu.Result {
			return p.classify(ctx, msg.ChatID, text)
		}
	}
	turn := NewTurn(ctx, msg, text, session, classify)

	result, matched := p.router.Match(text, turn)
	p.metrics.RecordRoute(matched)
	if !matched {
		p.logger.WithField("text_length", len(text)).Debug("No route matched")
		return Text(p.fallbackReply), nil
	}

	reply, err := toReply(result)
	if err != nil {
		return Reply{}, fmt.Errorf("route result: %w", err)
	}
	return reply, nil
}

// touch records when and where the chat was last seen. Store failures are
// logged and do not block the reply.
func (p *Processor) touch(ctx context.Context, session *Session, msg *message.Message) {
	platform, err := session.GetProp(ctx, PropPlatform)
	if err == nil && platform != string(msg.Platform) {
		err = session.SetProp(ctx, PropPlatform, string(msg.Platform))
	}
	if err == nil {
		err = session.SetProp(ctx, PropLastSeen, p.now().UnixMilli())
	}
	if err != nil {
		p.logger.WithError(err).WithField("session", session.ID()).Warn("Failed to update session")
	}
}

// classify queries the NLU driver under the per-chat NLU limiter.
func (p *Processor) classify(ctx context.Context, chatID, text string) *nlu.Result {
	name := p.driver.Name()
	if p.nluLimiter != nil && !p.nluLimiter.Allow(chatID) {
		p.metrics.RecordNLUQuery(name, "rate_limited", 0)
		p.logger.WithField("driver", name).Debug("NLU query skipped by rate limiter")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.nluTimeout)
	defer cancel()

	start := time.Now()
	result, err := p.driver.Query(ctx, text)
	duration := time.Since(start).Seconds()
	if err != nil {
		p.metrics.RecordNLUQuery(name, "error", duration)
		p.logger.WithError(err).WithField("driver", name).Warn("NLU query failed")
		return nil
	}
	p.metrics.RecordNLUQuery(name, "success", duration)
	return result
}
