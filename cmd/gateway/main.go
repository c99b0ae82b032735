package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/vocalbridge/gateway/internal/gateway/billing"
	"github.com/vocalbridge/gateway/internal/gateway/handlers"
	"github.com/vocalbridge/gateway/internal/gateway/idempotency"
	"github.com/vocalbridge/gateway/internal/gateway/orchestrator"
	"github.com/vocalbridge/gateway/internal/gateway/resilience"
	"github.com/vocalbridge/gateway/internal/gateway/tools"
	"github.com/vocalbridge/gateway/internal/gateway/vendors"
	"github.com/vocalbridge/gateway/internal/shared/config"
	"github.com/vocalbridge/gateway/internal/shared/database"
	"github.com/vocalbridge/gateway/internal/shared/redis"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}

	logger.Info("starting gateway", "port", cfg.Port, "env", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to postgres")

	redisClient, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err.Error())
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to redis")

	priceTable, err := billing.NewPriceTable(map[string]billing.ProviderPrice{
		"vendorA": {InputPer1K: cfg.VendorAInputPer1K, OutputPer1K: cfg.VendorAOutputPer1K},
		"vendorB": {InputPer1K: cfg.VendorBInputPer1K, OutputPer1K: cfg.VendorBOutputPer1K},
	})
	if err != nil {
		logger.Error("invalid price configuration", "error", err.Error())
		os.Exit(1)
	}

	var adapters []vendors.Adapter
	if cfg.OpenAIAPIKey != "" {
		adapters = append(adapters, vendors.NewVendorA(cfg.OpenAIAPIKey))
	}
	if cfg.GeminiAPIKey != "" {
		adapters = append(adapters, vendors.NewVendorB(cfg.GeminiAPIKey))
	}
	registry := vendors.NewRegistry(adapters...)
	logger.Info("initialized vendors", "providers", registry.Names())

	caller := resilience.NewCaller(db, resilience.Policy{
		Timeout:     cfg.VendorTimeout,
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
		BackoffCap:  cfg.BackoffCap,
	}, logger)

	idemStore := idempotency.NewRedisStore(redisClient)
	executor := tools.NewExecutor(db, logger, tools.NewInvoiceLookup())

	orch := orchestrator.New(
		registry,
		caller,
		idemStore,
		billing.NewCalculator(priceTable),
		db,
		executor,
		cfg.IdempotencyTTL,
		logger,
	)

	messageHandler := handlers.NewMessageHandler(orch, db, logger)
	middleware := handlers.NewMiddleware(db, redisClient, cfg.DefaultRateLimit)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.CorrelationIDMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.RateLimitMiddleware)

		r.Post("/messages", messageHandler.HandleSendMessage)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err.Error())
	}

	logger.Info("server stopped")
}
