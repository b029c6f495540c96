package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/docmate-health/docmate/internal/apispec"
	"github.com/docmate-health/docmate/internal/audit"
	"github.com/docmate-health/docmate/internal/azure"
	"github.com/docmate-health/docmate/internal/config"
	"github.com/docmate-health/docmate/internal/gemini"
	"github.com/docmate-health/docmate/internal/metrics"
	"github.com/docmate-health/docmate/internal/middleware"
	"github.com/docmate-health/docmate/internal/pdf"
	"github.com/docmate-health/docmate/internal/repository"
	"github.com/docmate-health/docmate/internal/server"
	"github.com/docmate-health/docmate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("model", cfg.Gemini.Model),
	)

	if cfg.Gemini.APIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set; AI routes will fail until it is configured")
	}

	if _, err := apispec.Load(context.Background()); err != nil {
		logger.Fatal("Embedded API document is invalid", zap.Error(err))
	}

	m := metrics.New()

	aiClient, err := gemini.NewClient(gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: cfg.Gemini.Timeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Gemini client", zap.Error(err))
	}
	aiClient.WithObserver(m)

	deps := server.Dependencies{
		Gateway: service.NewGatewayService(aiClient, logger),
		Metrics: m,
		Logger:  logger,
	}

	// The database is optional; without it the profile routes answer 503.
	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = newPool(context.Background(), cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := repository.Migrate(context.Background(), pool); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		auditLog := audit.NewLogger(pool, logger)
		if err := auditLog.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate audit log", zap.Error(err))
		}
		logger.Info("Successfully connected to database")

		deps.DB = pool
		deps.Profiles = service.NewProfileService(repository.NewProfileRepository(pool, logger), logger).
			WithAuditor(auditLog)
	} else {
		logger.Warn("DATABASE_URL is not set; profile storage is disabled")
	}

	var archive azure.ReportArchive
	if cfg.Azure.Storage.Enabled() {
		blobClient, err := azure.NewBlobStorageClient(
			cfg.Azure.Storage.AccountName,
			cfg.Azure.Storage.AccountKey,
			cfg.Azure.Storage.ReportContainer,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize report blob storage client", zap.Error(err))
		}
		archive = blobClient
	} else if cfg.Azure.Storage.MemoryArchive {
		logger.Warn("Archiving report PDFs in memory; archives are lost on restart")
		archive = azure.NewMemoryArchive(logger)
	}
	deps.Reports = service.NewReportService(pdf.NewPDFGenerator(logger), archive, logger)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := server.NewRouter(deps, server.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimit: middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst: cfg.RateLimit.Burst,
		},
		SlowRequestThreshold: cfg.Server.SlowRequestThreshold,
		MaxUploadBytes:       cfg.Server.MaxUploadBytes,
		VitalsInterval:       cfg.Vitals.Interval,
	})

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newLogger builds a production logger in production and a development
// logger otherwise, at the configured level and encoding.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Server.Environment == "production" {
		zcfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level

	if cfg.Logging.Format == "json" || cfg.Logging.Format == "console" {
		zcfg.Encoding = cfg.Logging.Format
	}

	return zcfg.Build()
}

func newPool(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, err
	}
	if db.MaxConns > 0 {
		poolCfg.MaxConns = db.MaxConns
	}
	if db.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = db.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
