package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carvision/defect-api/internal/config"
	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/handler"
	"github.com/carvision/defect-api/internal/infra/cache"
	"github.com/carvision/defect-api/internal/infra/identity"
	"github.com/carvision/defect-api/internal/infra/inference"
	"github.com/carvision/defect-api/internal/infra/observability"
	"github.com/carvision/defect-api/internal/infra/resilience"
	"github.com/carvision/defect-api/internal/infra/storage"
	"github.com/carvision/defect-api/internal/infra/store"
	"github.com/carvision/defect-api/internal/port"
	"github.com/carvision/defect-api/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("database_path", cfg.DatabasePath),
		zap.String("inference_url", cfg.InferenceURL),
		zap.Float64("confidence_threshold", cfg.ConfidenceThreshold),
		zap.Float64("live_confidence_threshold", cfg.LiveConfidenceThreshold),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("token_cache_ttl", cfg.TokenCacheTTL),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Bool("dev_auth", cfg.DevAuth),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "defect-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Record store ---
	recordStore, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("failed to open record store", zap.Error(err))
	}

	// --- Artifact storage ---
	artifacts, err := storage.NewLocalStore(cfg.UploadDir, logger)
	if err != nil {
		logger.Fatal("failed to init artifact storage", zap.Error(err))
	}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	bulkhead := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var verifier port.TokenVerifier
	if cfg.DevAuth {
		logger.Warn("DEV_AUTH enabled: verifying tokens locally, do not use in production")
		verifier = identity.NewDevTokenVerifier(cfg.DevAuthSecret)
	} else {
		verifier = identity.NewProviderClient(
			httpClient,
			cfg.IdentityBaseURL,
			cfg.IdentityAPIKey,
			resilience.NewCircuitBreaker("identity-provider"),
			resilienceCfg,
			logger,
		)
	}

	model := inference.NewClient(
		httpClient,
		cfg.InferenceURL,
		resilience.NewCircuitBreaker("inference"),
		resilienceCfg,
	)

	// Fail fast when the model service is not up; a defect API without its
	// model serves nothing useful.
	bootCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	if err := model.Healthcheck(bootCtx); err != nil {
		cancel()
		logger.Fatal("inference service healthcheck failed", zap.Error(err))
	}
	cancel()
	logger.Info("inference service healthy", zap.String("url", cfg.InferenceURL))

	// --- Services ---
	tokenCache := cache.New[*domain.Identity](cfg.TokenCacheTTL)
	identitySvc := service.NewIdentityService(verifier, recordStore, tokenCache, metrics, logger)
	detectionSvc := service.NewDetectionService(model, logger)
	predictSvc := service.NewPredictionService(
		recordStore,
		artifacts,
		detectionSvc,
		bulkhead,
		metrics,
		logger,
		cfg.ConfidenceThreshold,
		cfg.LiveConfidenceThreshold,
	)

	// --- Router ---
	router := handler.NewRouter(handler.Deps{
		Identity:  identitySvc,
		Predict:   predictSvc,
		Metrics:   metrics,
		Logger:    logger,
		StaticDir: cfg.StaticDir,
		Ready: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return recordStore.Ping(ctx)
		},
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
