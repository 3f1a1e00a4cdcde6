package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/domain"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/materialize"
	"server/internal/orchestrator"
	"server/internal/providers/video"
	"server/internal/quota"
	"server/internal/service"
	"server/internal/storage"
	"server/internal/sweeper"
)

func main() {
	// .env is optional.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		jobs         domain.JobRepository
		counters     domain.QuotaRepository
		entitlements domain.EntitlementRepository
	)
	switch cfg.JobStore {
	case infra.JobStorePostgres:
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		jobs = repo.NewJobRepository(dbpool)
		counters = repo.NewQuotaRepository(dbpool)
		entitlements = repo.NewEntitlementRepository(dbpool)
	case infra.JobStoreMemory:
		registry := repo.NewJobRegistry()
		jobs = registry
		counters = repo.NewCounterRegistry()
		entitlements = repo.StaticEntitlements{Plan: domain.PlanTier(cfg.DefaultPlan)}

		sw := sweeper.New(sweeper.Options{
			Registry:  registry,
			Interval:  cfg.SweepInterval,
			Retention: cfg.RetentionAge,
			Logger:    logger,
		})
		go sw.Run(ctx)
	}

	store, err := storage.NewObjectStore(
		storage.WithEndpoint(cfg.StorageEndpoint),
		storage.WithBucket(cfg.StorageBucket),
		storage.WithAccessKey(cfg.StorageAccessKey),
		storage.WithSecretKey(cfg.StorageSecretKey),
		storage.WithSSL(cfg.StorageUseSSL),
		storage.WithPublicBaseURL(cfg.StoragePublicBaseURL),
		storage.WithMediaBaseURL(cfg.StorageMediaBaseURL),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure object storage")
	}

	provider, err := video.NewClient(video.Options{
		APIKeys: cfg.VeoAPIKeys,
		BaseURL: cfg.VeoBaseURL,
		Model:   cfg.VeoModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure video provider")
	}

	materializer, err := materialize.New(materialize.Options{
		Store:   store,
		TempDir: cfg.TempDir,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure materializer")
	}

	guard := quota.NewGuard(entitlements, counters)

	orch := orchestrator.New(orchestrator.Options{
		Jobs:         jobs,
		Provider:     provider,
		Materializer: materializer,
		Usage:        guard,
		Logger:       logger,
		Poll: orchestrator.PollConfig{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.PollMaxAttempts,
		},
	})
	// The pool hangs off the root context, not the signal context: a SIGTERM
	// must not cancel in-flight jobs before the drain window below.
	pool := orchestrator.NewPool(context.Background(), cfg.OrchestratorPoolSize, logger)

	generations := service.NewGenerationService(service.Options{
		Jobs:      jobs,
		Guard:     guard,
		Processor: orch,
		Runner:    pool,
		Store:     store,
		Logger:    logger,
	})

	app := handlers.NewApp(generations, logger)
	router := httpapi.NewRouter(app, cfg.JWTSecret, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to drain background work")
	}
	logger.Info().Msg("server stopped")
}
