package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/cuadrilla-dispatch/internal/api/dto"
	httptransport "github.com/spec-kit/cuadrilla-dispatch/internal/api/http"
	"github.com/spec-kit/cuadrilla-dispatch/internal/api/http/handlers"
	"github.com/spec-kit/cuadrilla-dispatch/internal/auth"
	"github.com/spec-kit/cuadrilla-dispatch/internal/config"
	"github.com/spec-kit/cuadrilla-dispatch/internal/events"
	"github.com/spec-kit/cuadrilla-dispatch/internal/integration/reclamos"
	"github.com/spec-kit/cuadrilla-dispatch/internal/integration/whatsapp"
	"github.com/spec-kit/cuadrilla-dispatch/internal/observability"
	"github.com/spec-kit/cuadrilla-dispatch/internal/persistence"
	"github.com/spec-kit/cuadrilla-dispatch/internal/queue"
	"github.com/spec-kit/cuadrilla-dispatch/internal/repository"
	"github.com/spec-kit/cuadrilla-dispatch/internal/repository/memstore"
	"github.com/spec-kit/cuadrilla-dispatch/internal/service"
	"github.com/spec-kit/cuadrilla-dispatch/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var store repository.Store
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		store = memstore.New()
	}

	rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer rdb.Close()

	tokens := auth.NewServiceTokens(cfg.Reclamos.JWTSecret, cfg.Reclamos.JWTIssuer, cfg.Reclamos.TokenTTL())
	reclamosClient := reclamos.New(cfg.Reclamos, tokens)

	var sender service.TemplateSender
	if cfg.WhatsApp.Enabled() {
		sender = whatsapp.New(cfg.WhatsApp)
	} else {
		logger.Warn("WHATSAPP_API_URL not provided; notifications disabled")
	}

	dispatcher := events.NewInMemoryDispatcher()
	synchronizer := service.NewStatusSynchronizer(store, reclamosClient, logger, metrics, cfg.Sync.MaxAttempts)

	assignments := service.NewAssignmentService(service.AssignmentDependencies{
		Store:        store,
		Synchronizer: synchronizer,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Metrics:      metrics,
	})

	var producer queue.Producer
	var consumer *queue.RedisConsumer
	if cfg.Notification.QueueEnabled && rdb.Reachable() {
		consumer, err = queue.NewRedisConsumer(ctx, rdb.Client, queue.ConsumerConfig{
			Stream:   cfg.Notification.Stream,
			Group:    cfg.Notification.Group,
			Consumer: cfg.Notification.Consumer,
			MinIdle:  cfg.Notification.ClaimMinIdle(),
		}, logger)
		if err != nil {
			logger.Warn("notification queue unavailable; delivering in-process", zap.Error(err))
		} else {
			producer = queue.NewRedisProducer(rdb.Client, cfg.Notification.Stream, logger)
		}
	}

	notifications := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:   dispatcher,
		Complaints:   reclamosClient,
		Sender:       sender,
		Producer:     producer,
		Logger:       logger,
		Metrics:      metrics,
		Config:       cfg.Notification,
		LanguageCode: cfg.WhatsApp.LanguageCode,
	})
	notifications.RegisterHandlers()

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	syncWorker := worker.NewSyncRetryWorker(synchronizer, logger, cfg.Sync.RetryInterval(), cfg.Sync.BatchSize)
	go syncWorker.Run(workerCtx)

	if consumer != nil {
		notifyWorker := worker.NewNotificationWorker(consumer, notifications, logger,
			cfg.Notification.MaxAttempts, cfg.Notification.Timeout(), cfg.Notification.ReclaimInterval())
		go notifyWorker.Run(workerCtx)
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:        cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.App.CORSAllowedOrigins,
	})

	v := dto.NewValidator()
	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics,
		handlers.Dependency{Name: "postgres", Pinger: pg, Required: pg.Enabled()},
		handlers.Dependency{Name: "redis", Pinger: rdb, Required: producer != nil},
	)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:      healthHandler,
		Assignments: handlers.NewAssignmentHandler(assignments, synchronizer, v),
		Crews:       handlers.NewCrewHandler(assignments, v),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	stopWorkers()
	notifications.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
