// Package main is the entry point for the Ferrabot server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/ai"
	"github.com/ferraceros/ferrabot/internal/circuitbreaker"
	"github.com/ferraceros/ferrabot/internal/clock"
	"github.com/ferraceros/ferrabot/internal/config"
	"github.com/ferraceros/ferrabot/internal/content"
	"github.com/ferraceros/ferrabot/internal/conversation"
	"github.com/ferraceros/ferrabot/internal/database"
	"github.com/ferraceros/ferrabot/internal/domain"
	"github.com/ferraceros/ferrabot/internal/handler"
	"github.com/ferraceros/ferrabot/internal/logging"
	"github.com/ferraceros/ferrabot/internal/metrics"
	"github.com/ferraceros/ferrabot/internal/middleware"
	"github.com/ferraceros/ferrabot/internal/repository"
	"github.com/ferraceros/ferrabot/internal/sheets"
	"github.com/ferraceros/ferrabot/internal/shutdown"
	"github.com/ferraceros/ferrabot/internal/webhook"
	"github.com/ferraceros/ferrabot/internal/whatsapp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	appLogger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := appLogger.Zap()
	defer func() { _ = logger.Sync() }()

	logger.Info("starting Ferrabot server",
		zap.String("addr", cfg.Server.Address()),
		zap.String("env", cfg.Server.Environment),
		zap.String("sheets_backend", cfg.Sheets.Backend),
	)

	ctx := context.Background()
	m := metrics.NewMetrics()
	events := metrics.NewBusinessEventLogger(logger)
	clk := clock.New()

	catalog, err := content.Load(cfg.Content.Path)
	if err != nil {
		logger.Fatal("failed to load content catalog", zap.Error(err))
	}

	// Upstream clients
	gateway := whatsapp.NewClient(&cfg.WhatsApp, logger.Named("whatsapp"), whatsapp.WithObserver(m))
	aiBreaker := newBreaker("openai", m, logger)
	assistant := ai.NewAssistant(&cfg.OpenAI, logger.Named("ai"),
		ai.WithObserver(m),
		ai.WithCircuitBreaker(aiBreaker),
	)

	sink, err := initRowSink(ctx, cfg, m, logger)
	if err != nil {
		logger.Fatal("failed to initialize row sink", zap.Error(err))
	}

	// Conversation engine and per-user dispatch
	engine := conversation.NewEngine(conversation.EngineConfig{
		Gateway:           gateway,
		Appender:          sink.appender,
		Assistant:         assistant,
		Content:           catalog,
		Clock:             clk,
		Recorder:          m,
		Auditor:           events,
		Logger:            logger,
		InactivityTimeout: cfg.Conversation.InactivityTimeout,
		FeedbackEnabled:   cfg.Conversation.FeedbackEnabled,
		ExitCommand:       cfg.Conversation.ExitCommand,
		BotID:             cfg.WhatsApp.BotID,
		Location:          cfg.Sheets.Location(),
	})
	dispatcher := conversation.NewDispatcher(engine, cfg.Conversation.MailboxSize, logger)

	dedupe, err := webhook.NewDeduper(cfg.Conversation.DedupeSize, cfg.Conversation.DedupeTTL, clk)
	if err != nil {
		logger.Fatal("failed to create webhook deduper", zap.Error(err))
	}
	intake := webhook.NewIntake(webhook.IntakeConfig{
		Deduper:  dedupe,
		Sink:     dispatcher,
		Recorder: m,
		Auditor:  events,
		Logger:   logger.Named("webhook"),
	})

	// Initialize shutdown coordinator
	shutdownCoord := shutdown.NewCoordinator(&shutdown.Config{
		Timeout: cfg.Server.ShutdownTimeout,
	}, logger)

	// HTTP surface
	breakers := []*circuitbreaker.CircuitBreaker{aiBreaker}
	if sink.breaker != nil {
		breakers = append(breakers, sink.breaker)
	}

	health := handler.HealthHandlerConfig{
		Readiness: shutdown.NewReadinessProbe(shutdownCoord),
		Sessions:  engine,
		Logger:    logger,
	}
	if sink.db != nil {
		health.HealthChecker = sink.db
	}
	for _, b := range breakers {
		health.Breakers = append(health.Breakers, b)
	}

	handlers := []handler.RouteRegistrar{
		handler.NewWebhookHandler(handler.WebhookHandlerConfig{
			Intake:      intake,
			VerifyToken: cfg.WhatsApp.VerifyToken,
			AppSecret:   cfg.WhatsApp.AppSecret,
			Recorder:    m,
			Logger:      logger.Named("webhook"),
		}),
		handler.NewHealthHandler(health),
	}

	if cfg.Server.AdminToken != "" {
		admin := handler.AdminHandlerConfig{
			Token:       cfg.Server.AdminToken,
			LogLevel:    appLogger,
			RateLimiter: middleware.NewRateLimiter(cfg.Server.AdminRateLimit, cfg.Server.AdminRateWindow, clk, logger),
			Logger:      logger.Named("admin"),
		}
		for _, b := range breakers {
			admin.Breakers = append(admin.Breakers, b)
		}
		handlers = append(handlers, handler.NewAdminHandler(admin))
	} else {
		logger.Info("admin endpoints disabled: no admin token configured")
	}

	if cfg.WhatsApp.AppSecret == "" {
		warn := logger.Warn
		if cfg.IsProduction() {
			warn = logger.Error
		}
		warn("webhook signature verification disabled: no app secret configured")
	}

	router := handler.NewRouter(handler.RouterConfig{
		Logger:   logger,
		Metrics:  m,
		Handlers: handlers,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Register services for graceful shutdown (in order of shutdown phases)
	shutdownCoord.RegisterFunc(shutdown.PhaseStopIntake, "http-server", server.Shutdown)
	shutdownCoord.RegisterFunc(shutdown.PhaseDrainEvents, "dispatcher", dispatcher.Shutdown)
	shutdownCoord.RegisterFunc(shutdown.PhaseStopSessions, "conversation-engine", func(context.Context) error {
		engine.Close()
		return nil
	})
	if sink.close != nil {
		shutdownCoord.RegisterFunc(shutdown.PhaseCleanup, "row-sink", func(context.Context) error {
			return sink.close()
		})
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("received shutdown signal")

	// Execute graceful shutdown
	if err := shutdownCoord.Shutdown(ctx); err != nil {
		logger.Error("shutdown completed with errors", zap.Error(err))
	}
}

// initLogger builds the application logger from configuration.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(&logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Server.Environment,
	})
}

// newBreaker creates a breaker whose state is exported as a gauge.
func newBreaker(name string, m *metrics.Metrics, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	cb := circuitbreaker.New(name, circuitbreaker.DefaultConfig(), logger,
		circuitbreaker.WithStateChange(func(breaker string, _, to circuitbreaker.State) {
			m.SetCircuitBreakerState(breaker, int(to))
		}),
	)
	m.SetCircuitBreakerState(name, int(circuitbreaker.StateClosed))
	return cb
}

// rowSink is the configured quotation row backend plus what it owns.
type rowSink struct {
	appender domain.RowAppender
	// breaker guards remote backends; nil for local ones.
	breaker *circuitbreaker.CircuitBreaker
	// db is set for the postgres backend and used for health checks.
	db    *database.DB
	close func() error
}

// initRowSink opens the backend selected by sheets.backend and wraps it
// with metrics and error typing.
func initRowSink(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*rowSink, error) {
	log := logger.Named("sheets")
	sink := &rowSink{}
	var backend domain.RowAppender

	switch cfg.Sheets.Backend {
	case config.SheetsBackendGoogle:
		sink.breaker = newBreaker("google-sheets", m, logger)
		g, err := sheets.NewGoogleAppender(ctx, &cfg.Sheets, sink.breaker, log)
		if err != nil {
			return nil, err
		}
		backend = g

	case config.SheetsBackendPostgres:
		db, err := database.New(ctx, &cfg.Database, logger.Named("database"), m)
		if err != nil {
			return nil, err
		}
		if err := database.NewMigrator(db.Pool, logger.Named("migrate")).Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		sink.db = db
		sink.close = func() error {
			db.Close()
			return nil
		}
		backend = sheets.NewPostgresAppender(repository.NewQuotationRowRepository(db.Pool, log))

	case config.SheetsBackendBolt:
		b, err := sheets.NewBoltAppender(cfg.Bolt.Path)
		if err != nil {
			return nil, err
		}
		sink.close = b.Close
		backend = b

	default:
		return nil, fmt.Errorf("unknown sheets backend %q", cfg.Sheets.Backend)
	}

	sink.appender = sheets.Instrument(cfg.Sheets.Backend, backend, m, log)
	log.Info("row sink ready", zap.String("backend", cfg.Sheets.Backend))
	return sink, nil
}
