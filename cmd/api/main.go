package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/scan-service/internal/api/http"
	"github.com/spec-kit/scan-service/internal/api/http/handlers"
	"github.com/spec-kit/scan-service/internal/auth"
	"github.com/spec-kit/scan-service/internal/config"
	"github.com/spec-kit/scan-service/internal/events"
	"github.com/spec-kit/scan-service/internal/observability"
	"github.com/spec-kit/scan-service/internal/occupancy"
	"github.com/spec-kit/scan-service/internal/persistence"
	"github.com/spec-kit/scan-service/internal/repository"
	"github.com/spec-kit/scan-service/internal/service"
	"github.com/spec-kit/scan-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	credentialRepo := repository.NewCredentialRepository(pool)
	targetRepo := repository.NewTargetRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	discrepancyRepo := repository.NewDiscrepancyRepository(pool)
	deviceRepo := repository.NewDeviceRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)

	var tracker occupancy.Tracker
	if strings.EqualFold(cfg.Occupancy.Backend, "memory") {
		tracker = occupancy.NewMemoryTracker(logger)
	} else {
		tracker = occupancy.NewRedisTracker(redis.Client, cfg.Occupancy.KeyPrefix, logger)
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()

	engine := service.NewScanService(service.ScanDependencies{
		CredentialRepo: credentialRepo,
		TargetRepo:     targetRepo,
		LedgerRepo:     ledgerRepo,
		Tracker:        tracker,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	reconcileService := service.NewReconcileService(service.ReconcileDependencies{
		Engine:          engine,
		LedgerRepo:      ledgerRepo,
		DiscrepancyRepo: discrepancyRepo,
		Dispatcher:      dispatcher,
		Logger:          logger,
	})
	targetService := service.NewTargetService(targetRepo, tracker, dispatcher, logger)
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		DeviceRepo: deviceRepo,
		AdminRepo:  adminRepo,
	})
	alertService := service.NewAlertService(dispatcher, logger, cfg.Alert)
	worker.StartAlertWorker(alertService)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), deviceRepo, adminRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(),
		Auth:           handlers.NewAuthHandler(authService),
		Scans:          handlers.NewScansHandler(engine, reconcileService, metrics),
		Targets:        handlers.NewTargetsHandler(targetService),
		Ledger:         handlers.NewLedgerHandler(ledgerRepo),
		Discrepancies:  handlers.NewDiscrepanciesHandler(discrepancyRepo),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
