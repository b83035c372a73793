package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/curtistech/unlock-server/internal/config"
	"github.com/curtistech/unlock-server/internal/database"
	"github.com/curtistech/unlock-server/internal/handler"
	"github.com/curtistech/unlock-server/internal/jobs"
	"github.com/curtistech/unlock-server/internal/metrics"
	"github.com/curtistech/unlock-server/internal/middleware"
	"github.com/curtistech/unlock-server/internal/notify"
	"github.com/curtistech/unlock-server/internal/redis"
	"github.com/curtistech/unlock-server/internal/repository"
	"github.com/curtistech/unlock-server/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	metrics.MustRegister()

	store, limiter, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.LedgerBackend).Msg("failed to open ledger storage")
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), config.StoragePingTimeout)
	if err := store.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("backend", cfg.LedgerBackend).Msg("failed to ping ledger storage")
	}
	cancel()
	log.Info().Str("backend", cfg.LedgerBackend).Msg("ledger storage ready")

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.BrevoAPIKey != "" {
		notifier = notify.NewBrevoNotifier(notify.BrevoConfig{
			APIKey:      cfg.BrevoAPIKey,
			FromEmail:   cfg.BrevoFromEmail,
			FromName:    cfg.BrevoFromName,
			ProductName: cfg.ProductName,
		})
	} else {
		log.Warn().Msg("BREVO_API_KEY not set, purchaser emails will only be logged")
	}

	dispatcher := notify.NewDispatcher(notifier, cfg.NotifyQueueSize, config.NotifyTimeout)
	dispatcher.Start()

	ledger := service.NewLedger(store)
	ingestor := service.NewIngestor(ledger, dispatcher)

	if cfg.StripeWebhookSecret == "" {
		log.Warn().Msg("STRIPE_WEBHOOK_SECRET not set, webhook signatures are not verified")
	}

	stripeMiddleware := middleware.NewStripeSignatureMiddleware(cfg.StripeWebhookSecret)
	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(cfg.AdminPasswordHash)
	redeemRateLimit := middleware.NewRateLimitMiddleware(limiter, cfg.RedeemRateLimitPerMin, "redeem")
	webhookBodyLimit := middleware.NewBodyLimitMiddleware(config.WebhookMaxBodyBytes)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	webhookHandler := handler.NewWebhookHandler(ingestor)
	redeemHandler := handler.NewRedeemHandler(ledger)
	adminHandler := handler.NewAdminHandler(ledger, adminAuthMiddleware.Handler)
	healthHandler := handler.NewHealthHandler(ledger, cfg.LedgerBackend, config.StoragePingTimeout)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/webhook", func(r chi.Router) {
		r.Use(webhookBodyLimit.Handler)
		r.Use(stripeMiddleware.Handler)
		r.Post("/", webhookHandler.Handle)
	})

	r.Group(func(r chi.Router) {
		r.Use(bodyLimitMiddleware.Handler)
		r.Use(redeemRateLimit.Handler)
		r.Mount("/", redeemHandler.Routes())
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(bodyLimitMiddleware.Handler)
		r.Mount("/", adminHandler.Routes())
	})

	statsJob := jobs.NewStatsJob(ledger, cfg.StatsInterval())
	statsJob.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	statsJob.Stop()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), config.NotifyDrainTimeout)
	defer drainCancel()
	if err := dispatcher.Stop(drainCtx); err != nil {
		log.Warn().Err(err).Msg("notification queue not fully drained")
	}

	log.Info().Msg("server stopped")
}

// openStore returns the ledger storage for the configured backend, the
// limiter the redeem routes should share with it, and a close func.
func openStore(cfg *config.Config) (repository.RedemptionStore, middleware.Limiter, func(), error) {
	noop := func() {}

	switch cfg.LedgerBackend {
	case config.BackendFile:
		store, err := repository.NewFileStore(cfg.LedgerFile)
		if err != nil {
			return nil, nil, noop, err
		}
		log.Info().Str("path", store.Path()).Msg("file ledger loaded")
		return store, middleware.NewRateLimiter(), noop, nil

	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), config.StoragePingTimeout)
		defer cancel()
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, noop, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, noop, fmt.Errorf("migrate: %w", err)
		}
		return repository.NewPostgresStore(db.DB), middleware.NewRateLimiter(), func() { db.Close() }, nil

	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), config.StoragePingTimeout)
		defer cancel()
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, noop, err
		}
		return repository.NewRedisStore(client.Client), middleware.NewRedisRateLimiter(client.Client), func() { client.Close() }, nil

	default:
		log.Warn().Msg("using in-memory ledger, codes are lost on restart")
		return repository.NewMemoryStore(), middleware.NewRateLimiter(), noop, nil
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
