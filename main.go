package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/auth"
	"github.com/steiner385/machshop-cutover/pkg/config"
	"github.com/steiner385/machshop-cutover/pkg/database"
	"github.com/steiner385/machshop-cutover/pkg/handlers"
	"github.com/steiner385/machshop-cutover/pkg/logging"
	"github.com/steiner385/machshop-cutover/pkg/middleware"
	"github.com/steiner385/machshop-cutover/pkg/repositories"
	"github.com/steiner385/machshop-cutover/pkg/retry"
	"github.com/steiner385/machshop-cutover/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.Bool("redis_enabled", cfg.Redis.Host != ""))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database connection with retry; the control plane often starts under
	// the same orchestrator as Postgres and must ride out its warmup.
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.String("error", logging.SanitizeError(err)))
	}
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.String("error", logging.SanitizeError(err)))
	}
	_ = sqlDB.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.String("error", logging.SanitizeError(err)))
	}

	var locker services.SnapshotLocker
	if redisClient != nil {
		locker = services.NewRedisSnapshotLocker(redisClient, cfg.Snapshot.LockTTL)
	} else {
		logger.Warn("Redis not configured, rollback lock is process-local")
		locker = services.NewLocalSnapshotLocker()
	}

	// Repositories
	sampleRepo := repositories.NewMetricSampleRepository(db)
	checklistRepo := repositories.NewChecklistRepository(db)
	approvalRepo := repositories.NewApprovalRepository(db)
	snapshotRepo := repositories.NewSnapshotRepository(db)
	rollbackRepo := repositories.NewRollbackRepository(db)
	alertRepo := repositories.NewAlertRepository(db)
	recordStore := repositories.NewMigrationRecordStore(db)

	// Services
	metricsService := services.NewMetricsService(sampleRepo, cfg.Metrics.PredictionSamples, cfg.Metrics.DefaultTrendWindow, logger)
	readinessService := services.NewReadinessService(checklistRepo, sampleRepo, alertRepo, logger)
	alertService := services.NewAlertService(alertRepo, logger)
	approvalService := services.NewApprovalService(approvalRepo, alertService, logger)
	triggerService := services.NewAlertTriggerService(sampleRepo, alertRepo, &cfg.Alerting, logger)
	snapshotService := services.NewSnapshotService(snapshotRepo, rollbackRepo, recordStore, locker, services.SnapshotEngineConfig{
		StorageTimeout:     cfg.Snapshot.StorageTimeout,
		CaptureConcurrency: cfg.Snapshot.CaptureConcurrency,
	}, logger)
	rollbackService := services.NewRollbackService(snapshotRepo, rollbackRepo, recordStore,
		snapshotService, alertService, locker, cfg.Snapshot.StorageTimeout, logger)
	retentionService := services.NewRetentionService(sampleRepo, cfg.Retention.Days, logger)

	retentionService.RunScheduler(ctx, cfg.Retention.SweepInterval)

	// Authentication
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()
	authMiddleware := auth.NewMiddleware(jwksClient, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewMetricsHandler(metricsService, triggerService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewChecklistHandler(readinessService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewReadinessHandler(readinessService, approvalService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewSnapshotHandler(snapshotService, rollbackService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAlertHandler(alertService, triggerService, logger).RegisterRoutes(mux, authMiddleware)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Starting machshop-cutover",
		zap.String("addr", server.Addr),
		zap.String("version", cfg.Version),
		zap.Bool("tls", cfg.TLSCertPath != ""))

	if cfg.TLSCertPath != "" {
		err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}
