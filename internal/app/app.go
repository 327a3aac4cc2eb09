// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calamars-bot/calamars-go/internal/bot"
	"github.com/calamars-bot/calamars-go/internal/buildinfo"
	"github.com/calamars-bot/calamars-go/internal/config"
	"github.com/calamars-bot/calamars-go/internal/contextstore"
	"github.com/calamars-bot/calamars-go/internal/ctxutil"
	"github.com/calamars-bot/calamars-go/internal/facebook"
	"github.com/calamars-bot/calamars-go/internal/line"
	"github.com/calamars-bot/calamars-go/internal/logger"
	"github.com/calamars-bot/calamars-go/internal/metrics"
	"github.com/calamars-bot/calamars-go/internal/nlu"
	"github.com/calamars-bot/calamars-go/internal/ratelimit"
	"github.com/calamars-bot/calamars-go/internal/router"
	"github.com/calamars-bot/calamars-go/internal/routes"
	"github.com/calamars-bot/calamars-go/internal/sentry"
	"github.com/calamars-bot/calamars-go/internal/telegram"
	"github.com/calamars-bot/calamars-go/internal/webhook"
)

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg         *config.Config
	logger      *logger.Logger
	store       contextstore.Store
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
	nluDriver   nlu.Driver
	chatLimiter *ratelimit.KeyedLimiter
	nluLimiter  *ratelimit.KeyedLimiter
	dispatcher  *webhook.Dispatcher
	fbClient    *facebook.Client
	router      *gin.Engine
	server      *http.Server
	wg          sync.WaitGroup // Track background goroutines for graceful shutdown
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	opts := logger.Options{}
	if cfg.BetterStack.Enabled {
		opts.BetterStackToken = cfg.BetterStack.Token
		opts.BetterStackEndpoint = cfg.BetterStack.Endpoint
	}
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, opts)
	return initialize(ctx, cfg, log)
}

func initialize(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Application, error) {
	log = log.WithField("service", cfg.ServerName)
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Package-level slog.*Context() calls pick up request, chat and user ids
	// through the ContextHandler.
	slog.SetDefault(log.Logger)

	log.WithField("release", buildinfo.Release()).Info("Initializing application...")
	if opts := cfg.BetterStack; opts.Enabled {
		log.WithField("endpoint", opts.Endpoint).Info("Better Stack logging enabled")
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Initialize(sentry.Config{
			Token:       cfg.Sentry.Token,
			Host:        cfg.Sentry.Host,
			Environment: cfg.Sentry.Environment,
			Release:     buildinfo.Release(),
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			log.WithError(err).Warn("Sentry initialization failed")
		} else {
			log.WithField("environment", cfg.Sentry.Environment).Info("Sentry error reporting enabled")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	store, err := contextstore.Open(ctx, cfg, m)
	if err != nil {
		return nil, fmt.Errorf("context store: %w", err)
	}
	log.WithField("backend", cfg.Store.Kind).Info("Context store opened")

	driver, err := nlu.New(ctx, cfg.NLU)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if driver != nil {
		log.WithField("driver", driver.Name()).Info("NLU enabled")
	}

	table, err := loadRoutes(cfg.RoutesFile)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	log.WithField("routes", len(table)).WithField("file", cfg.RoutesFile).Info("Route table loaded")

	chatLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "chat",
		Burst:         cfg.Bot.UserRateLimitBurst,
		RefillRate:    cfg.Bot.UserRateLimitRefillPerSec,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})
	nluLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "nlu",
		Burst:         cfg.Bot.NLUBurstTokens,
		RefillRate:    cfg.Bot.NLURefillPerHour / 3600.0, // Convert hourly to per-second
		DailyLimit:    cfg.Bot.NLUDailyLimit,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})

	app := &Application{
		cfg:         cfg,
		logger:      log,
		store:       store,
		metrics:     m,
		registry:    registry,
		nluDriver:   driver,
		chatLimiter: chatLimiter,
		nluLimiter:  nluLimiter,
	}

	processor, err := bot.NewProcessor(bot.ProcessorConfig{
		Router:        router.New(table),
		Store:         store,
		NLU:           driver,
		ChatLimiter:   chatLimiter,
		NLULimiter:    nluLimiter,
		FallbackReply: cfg.FallbackReply,
		NLUTimeout:    config.NLURequest,
		Logger:        log,
		Metrics:       m,
	})
	if err != nil {
		app.closeResources()
		return nil, fmt.Errorf("processor: %w", err)
	}

	app.dispatcher, err = webhook.NewDispatcher(webhook.DispatcherConfig{
		Processor: processor,
		Logger:    log,
		Metrics:   m,
		Timeout:   cfg.Bot.WebhookTimeout,
	})
	if err != nil {
		app.closeResources()
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	if err := app.setupRouter(); err != nil {
		app.closeResources()
		return nil, err
	}

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadHeaderTimeout: config.WebhookHTTPRead,
		ReadTimeout:       config.WebhookHTTPRead,
		WriteTimeout:      config.WebhookHTTPWrite,
		IdleTimeout:       config.WebhookHTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

// loadRoutes reads the route file, or falls back to the built-in table.
func loadRoutes(path string) (router.Table, error) {
	if path == "" {
		return routes.Default(), nil
	}
	table, err := routes.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load routes: %w", err)
	}
	return table, nil
}

// setupRouter mounts health, metrics and one webhook per enabled platform.
func (a *Application) setupRouter() error {
	cfg := a.cfg

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if sentry.IsEnabled() {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(securityHeadersMiddleware())
	r.Use(loggingMiddleware(a.logger))

	r.GET("/livez", a.livenessCheck)
	r.HEAD("/livez", a.livenessCheck)
	r.GET("/readyz", a.readinessCheck)
	r.HEAD("/readyz", a.readinessCheck)
	r.GET("/metrics",
		metricsAuthMiddleware(cfg.Metrics, a.metrics),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	if cfg.FacebookEnabled() {
		a.fbClient = facebook.NewClient(cfg.Facebook.GraphURL, nil)
		h, err := facebook.NewHandler(facebook.HandlerConfig{
			VerifyToken: cfg.Facebook.VerifyToken,
			AppSecret:   cfg.Facebook.AppSecret,
			PageToken:   cfg.Facebook.PageToken,
			Client:      a.fbClient,
			Dispatcher:  a.dispatcher,
			Logger:      a.logger,
			Metrics:     a.metrics,
		})
		if err != nil {
			return fmt.Errorf("facebook: %w", err)
		}
		r.GET("/webhook/facebook", h.Verify)
		r.POST("/webhook/facebook", h.Receive)
		a.logger.Info("Facebook Messenger webhook mounted")
	}

	if cfg.TelegramEnabled() {
		sender, err := telegram.NewSender(telegram.SenderConfig{Token: cfg.Telegram.Token})
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		h, err := telegram.NewHandler(telegram.HandlerConfig{
			WebhookSecret: cfg.Telegram.WebhookSecret,
			Sender:        sender,
			Dispatcher:    a.dispatcher,
			Logger:        a.logger,
			Metrics:       a.metrics,
		})
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		r.POST("/webhook/telegram", h.Handle)
		a.logger.Info("Telegram webhook mounted")
	}

	if cfg.LineEnabled() {
		h, err := line.NewHandler(line.HandlerConfig{
			ChannelSecret: cfg.Line.ChannelSecret,
			ChannelToken:  cfg.Line.ChannelAccessToken,
			Dispatcher:    a.dispatcher,
			Logger:        a.logger,
			Metrics:       a.metrics,
		})
		if err != nil {
			return fmt.Errorf("line: %w", err)
		}
		r.POST("/webhook/line", h.Handle)
		a.logger.Info("LINE webhook mounted")
	}

	a.router = r
	return nil
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (a *Application) features() map[string]bool {
	return map[string]bool{
		"facebook": a.cfg.FacebookEnabled(),
		"telegram": a.cfg.TelegramEnabled(),
		"line":     a.cfg.LineEnabled(),
		"nlu":      a.nluDriver != nil,
		"sentry":   sentry.IsEnabled(),
	}
}

func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheckTimeout)
	defer cancel()

	if p, ok := a.store.(contextstore.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			a.logger.WithError(err).Warn("Readiness check failed: context store unavailable")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": "context store unavailable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"store":    a.cfg.Store.Kind,
		"features": a.features(),
	})
}

// Run starts the HTTP server and background jobs.
//
// Graceful shutdown sequence:
//  1. Receive shutdown signal (SIGINT/SIGTERM)
//  2. Cancel context so background jobs stop
//  3. Wait for background jobs to complete
//  4. Stop the HTTP server, drain in-flight updates, then close resources
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startBackgroundJobs starts all background goroutines tracked by WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	if a.fbClient != nil && a.cfg.Facebook.Subscribe {
		a.wg.Go(func() {
			a.subscribeFacebookPage(ctx)
		})
	}
}

// subscribeFacebookPage subscribes the app to the page's webhook events.
func (a *Application) subscribeFacebookPage(ctx context.Context) {
	subCtx, cancel := context.WithTimeout(ctx, config.PlatformAPIRequest)
	defer cancel()

	if err := a.fbClient.SubscribePage(subCtx, a.cfg.Facebook.PageToken); err != nil {
		a.logger.WithError(err).Error("Failed to subscribe Facebook page")
		sentry.CaptureWithTags(subCtx, err, map[string]string{"platform": "facebook"})
		return
	}
	a.logger.Info("Facebook page subscribed")
}

// startHTTPServer starts the HTTP server in a goroutine.
func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

// waitForShutdownSignal blocks until SIGINT/SIGTERM is received.
func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown stops the HTTP server, waits for in-flight updates and closes
// resources. Call it after background jobs have stopped.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Waiting for webhook updates to complete...")
	if err := a.dispatcher.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Dispatcher shutdown timeout")
	}

	a.logger.Info("Closing resources...")
	a.closeResources()

	if sentry.IsEnabled() {
		sentry.Flush(2 * time.Second)
	}

	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}

	a.logger.Info("Shutdown complete")
	return nil
}

func (a *Application) closeResources() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "context_store").Error("Component close error")
		}
	}
	if a.chatLimiter != nil {
		a.chatLimiter.Stop()
	}
	if a.nluLimiter != nil {
		a.nluLimiter.Stop()
	}
}

// securityHeadersMiddleware adds security headers to responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Next()
	}
}

// requestIDHeaders are checked in order; the first non-empty one wins.
var requestIDHeaders = []string{"X-Request-Id", "X-Correlation-Id"}

// loggingMiddleware logs HTTP requests with status-based log levels:
// 5xx=Error, 4xx=Warn, 404=Debug, 3xx/2xx=Debug.
func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		var requestID string
		for _, h := range requestIDHeaders {
			if requestID = c.GetHeader(h); requestID != "" {
				break
			}
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-Id", requestID)
		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		status := c.Writer.Status()
		entry := log.WithRequestID(requestID).
			WithField("http_method", method).
			WithField("http_path", path).
			WithField("http_status", status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("client_ip", c.ClientIP())

		switch {
		case status >= 500:
			entry.Error("HTTP request failed")
		case status == 404:
			entry.Debug("HTTP request not found")
		case status >= 400:
			entry.Warn("HTTP request rejected")
		default:
			entry.Debug("HTTP request completed")
		}
	}
}
