package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/change-request-service/internal/api/http"
	"github.com/spec-kit/change-request-service/internal/api/http/handlers"
	"github.com/spec-kit/change-request-service/internal/auth"
	"github.com/spec-kit/change-request-service/internal/config"
	"github.com/spec-kit/change-request-service/internal/events"
	"github.com/spec-kit/change-request-service/internal/observability"
	"github.com/spec-kit/change-request-service/internal/persistence"
	"github.com/spec-kit/change-request-service/internal/repository"
	"github.com/spec-kit/change-request-service/internal/service"
	"github.com/spec-kit/change-request-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(nil)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		repo     repository.ChangeRequestRepository
		fallback service.Sequencer
	)
	if pg.Enabled() {
		repo = repository.NewChangeRequestRepository(pg.PoolHandle())
	} else {
		repo = repository.NewMemoryChangeRequestRepository()
	}
	if seq, ok := repo.(service.Sequencer); ok {
		fallback = seq
	}
	var primary service.Sequencer
	if redis != nil {
		primary = redis
	}

	dispatcher := events.NewInMemoryDispatcher()
	notifications := service.NewNotificationService(logger, cfg.Notification)
	notifyWorker := worker.NewNotificationWorker(dispatcher, notifications.Handle, cfg.Notification.QueueSize, logger)
	notifyWorker.Start(ctx)

	crService := service.NewChangeRequestService(service.ChangeRequestDependencies{
		Repo:               repo,
		Numbers:            service.NewNumberGenerator(primary, fallback),
		Dispatcher:         dispatcher,
		Metrics:            metrics,
		Logger:             logger,
		EarlyClosureWindow: cfg.Workflow.EarlyClosureWindow(),
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	deps := map[string]handlers.Pinger{"postgres": nil, "redis": nil}
	if pg.Enabled() {
		deps["postgres"] = pg
	}
	if redis != nil {
		deps["redis"] = redis
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		ChangeRequests: handlers.NewChangeRequestsHandler(crService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
	cancel()
	notifyWorker.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
