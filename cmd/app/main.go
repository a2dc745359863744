// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vton-backend/internal/config"
	"vton-backend/internal/domain/ports/adapter"
	prov "vton-backend/internal/infra/adapters/provider"
	pg "vton-backend/internal/infra/db/postgres"
	"vton-backend/internal/infra/limiter"
	"vton-backend/internal/infra/logging"
	"vton-backend/internal/infra/metrics"
	red "vton-backend/internal/infra/redis"
	"vton-backend/internal/infra/sched"
	"vton-backend/internal/infra/storage"
	"vton-backend/internal/infra/web"
	"vton-backend/internal/infra/webhook"
	"vton-backend/internal/infra/worker"
	"vton-backend/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (verbose logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	// Flush the collector queue into the default registry served on /metrics.
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	statusCache := red.NewStatusCache(redisClient, cfg.Redis.TTL)

	// ---- Object storage ----
	store, err := storage.NewS3Storage(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}

	// ---- Provider ----
	provider, err := prov.NewRunPodAdapter(cfg.Provider.RunPod.APIToken, cfg.Provider.RunPod.Endpoint, cfg.Provider.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("runpod adapter")
	}
	logger.Info().Str("provider", provider.Name()).Msg("try-on provider configured")

	// Synchronous fallback chain, used when job submission fails.
	var fallback adapter.ImageGenerator
	if cfg.Provider.Fashn.APIKey != "" {
		fashn, err := prov.NewFashnAdapter(cfg.Provider.Fashn.APIKey, cfg.Provider.Fashn.BaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("fashn adapter")
		}
		fallback = prov.NewMultiGenerator(logger, fashn)
		logger.Info().Str("fallback", fashn.Name()).Msg("synchronous generator available")
	}

	// ---- Repositories ----
	taskRepo := pg.NewTaskRepo(pool)
	eventRepo := pg.NewTaskEventRepo(pool)
	deliveryRepo := pg.NewWebhookDeliveryRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Use cases ----
	dedup := usecase.NewIdempotencyCache()
	reconciler := usecase.NewReconcilerUseCase(taskRepo, eventRepo, deliveryRepo, tm, provider, store, dedup, statusCache, logger)

	workerPool := worker.NewPool(cfg.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	watcher := sched.NewCompletionWatcher(cfg.Polling, reconciler, workerPool, logger)

	webhookURL := strings.TrimRight(cfg.Server.PublicBaseURL, "/") + "/api/v1/tryon/webhook"
	taskUC := usecase.NewTaskUseCase(taskRepo, eventRepo, provider, fallback, store, watcher, webhookURL, logger)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	verifier := webhook.NewVerifier(cfg.Webhook.Secret)
	if verifier.Open() {
		logger.Warn().Msg("webhook secret not configured; signature verification disabled")
	}
	lim := limiter.NewSlidingWindow(cfg.RateLimit.Requests, cfg.RateLimit.Window)

	srv := web.NewServer(taskUC, reconciler, statusCache, auth, verifier, lim, cfg.Polling, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
