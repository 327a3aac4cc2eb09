// Package webhook runs normalized chat updates through the bot after the
// platform's webhook request has already been acknowledged.
//
// Platform handlers (facebook, telegram, line) verify and parse their own
// payloads, answer 200 right away, and hand each update to a Dispatcher
// together with a ReplyFunc that knows how to answer on that platform.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/calamars-bot/calamars-go/internal/bot"
	"github.com/calamars-bot/calamars-go/internal/config"
	"github.com/calamars-bot/calamars-go/internal/ctxutil"
	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
	"github.com/calamars-bot/calamars-go/internal/logger"
	"github.com/calamars-bot/calamars-go/internal/message"
	"github.com/calamars-bot/calamars-go/internal/metrics"
	"github.com/calamars-bot/calamars-go/internal/sentry"
)

// Update statuses recorded on calamars_webhook_updates_total.
const (
	StatusReplied     = "replied"
	StatusSilent      = "silent"
	StatusIgnored     = "ignored"
	StatusRateLimited = "rate_limited"
	StatusError       = "error"
	StatusReplyError  = "reply_error"
)

// Processor turns one inbound message into a reply.
type Processor interface {
	Handle(ctx context.Context, msg *message.Message) (bot.Reply, error)
}

// ReplyFunc sends reply texts back on the platform the update came from.
type ReplyFunc func(ctx context.Context, texts []string) error

// Delivery is one normalized update plus the way to answer it.
type Delivery struct {
	Message *message.Message
	Reply   ReplyFunc
}

// Dispatcher processes deliveries asynchronously and tracks in-flight work
// so that shutdown can wait for it.
type Dispatcher struct {
	processor Processor
	logger    *logger.Logger
	metrics   *metrics.Metrics
	timeout   time.Duration
	wg        sync.WaitGroup
}

// DispatcherConfig holds the dependencies of a Dispatcher.
type DispatcherConfig struct {
	Processor Processor
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
	// Timeout bounds the processing of a single update. Zero means
	// config.WebhookProcessing.
	Timeout time.Duration
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Processor == nil {
		return nil, errors.New("webhook: processor is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.New("info")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.WebhookProcessing
	}
	return &Dispatcher{
		processor: cfg.Processor,
		logger:    log.WithModule("webhook"),
		metrics:   cfg.Metrics,
		timeout:   timeout,
	}, nil
}

// Go runs fn in the background on a context detached from ctx's
// cancellation but carrying its tracing values. Panics are recovered and
// reported. Shutdown waits for fn to return.
func (d *Dispatcher) Go(ctx context.Context, fn func(ctx context.Context)) {
	base := ctxutil.PreserveTracing(ctx)
	d.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				sentry.RecoverPanic(base, r)
				d.logger.WithField("panic", fmt.Sprint(r)).Error("Panic in async webhook processing")
			}
		}()
		fn(base)
	})
}

// Submit processes deliveries in the background, in order. The request
// context only contributes tracing values because the HTTP response has
// already been written.
func (d *Dispatcher) Submit(ctx context.Context, deliveries []Delivery) {
	if len(deliveries) == 0 {
		return
	}

	// Copy deliveries to avoid racing with the caller after the response completes
	batch := make([]Delivery, len(deliveries))
	copy(batch, deliveries)

	d.Go(ctx, func(ctx context.Context) {
		for _, delivery := range batch {
			d.Deliver(ctx, delivery)
		}
	})
}

// Deliver processes one delivery synchronously and returns the recorded
// status. Panics raised while processing are recovered and reported.
func (d *Dispatcher) Deliver(ctx context.Context, delivery Delivery) (status string) {
	msg := delivery.Message
	if msg == nil {
		d.metrics.RecordWebhook("unknown", StatusIgnored, 0)
		return StatusIgnored
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	ctx = withMessage(ctx, msg)

	platform := string(msg.Platform)
	log := d.logger.WithField("platform", platform).WithField("chat_id", msg.ChatID)
	if requestID, ok := ctxutil.GetRequestID(ctx); ok {
		log = log.WithRequestID(requestID)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			sentry.RecoverPanic(ctx, r)
			log.WithField("panic", fmt.Sprint(r)).Error("Panic in async update processing")
			status = StatusError
			d.metrics.RecordWebhook(platform, status, time.Since(start).Seconds())
		}
	}()

	reply, err := d.processor.Handle(ctx, msg)
	switch {
	case errors.Is(err, domerrors.ErrRateLimitExceeded):
		status = StatusRateLimited
		log.Debug("Update dropped by rate limiter")
	case err != nil:
		status = StatusError
		log.WithError(err).Error("Failed to handle update")
		sentry.CaptureWithTags(ctx, err, map[string]string{"platform": platform})
		// Handlers that wrap their error with a user message still answer
		var wrapped *domerrors.WrappedError
		if errors.As(err, &wrapped) && wrapped.UserMessage != "" {
			d.reply(ctx, log, platform, delivery.Reply, bot.Text(domerrors.GetUserMessage(err)))
		}
	case reply.IsEmpty():
		status = StatusSilent
	default:
		status = d.reply(ctx, log, platform, delivery.Reply, reply)
	}

	duration := time.Since(start)
	d.metrics.RecordWebhook(platform, status, duration.Seconds())
	log.WithField("status", status).
		WithField("duration_ms", duration.Milliseconds()).
		Debug("Update processed")
	return status
}

func (d *Dispatcher) reply(ctx context.Context, log *logger.Logger, platform string, send ReplyFunc, reply bot.Reply) string {
	if send == nil {
		log.Warn("Update has no reply channel; dropping reply")
		return StatusSilent
	}

	start := time.Now()
	err := send(ctx, reply.Texts)
	d.metrics.RecordOutbound(platform, err, time.Since(start).Seconds())
	if err != nil {
		log.WithError(err).WithField("message_count", len(reply.Texts)).Error("Failed to send reply")
		sentry.CaptureWithTags(ctx, err, map[string]string{"platform": platform, "stage": "reply"})
		return StatusReplyError
	}
	return StatusReplied
}

// Shutdown waits for all async update processing to complete.
// It returns an error if the context is canceled before completion.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	c := make(chan struct{})
	go func() {
		defer close(c)
		d.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func withMessage(ctx context.Context, msg *message.Message) context.Context {
	ctx = ctxutil.WithPlatform(ctx, string(msg.Platform))
	if msg.ChatID != "" {
		ctx = ctxutil.WithChatID(ctx, msg.ChatID)
	}
	if msg.SenderID != "" {
		ctx = ctxutil.WithUserID(ctx, msg.SenderID)
	}
	if msg.MessageID != "" {
		ctx = ctxutil.WithMessageID(ctx, msg.MessageID)
	}
	return ctx
}
