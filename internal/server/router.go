// Package server assembles the gin engine: middleware chain and route table.
package server

import (
	"net/http"
	"time"

	"github.com/docmate-health/docmate/internal/apispec"
	"github.com/docmate-health/docmate/internal/handler"
	"github.com/docmate-health/docmate/internal/metrics"
	"github.com/docmate-health/docmate/internal/middleware"
	"github.com/docmate-health/docmate/internal/pdf"
	"github.com/docmate-health/docmate/internal/service"
	"github.com/docmate-health/docmate/pkg/model"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies are the services behind the routes. Profiles and DB may be
// nil when no database is configured; Reports defaults to rendering without
// an archive.
type Dependencies struct {
	Gateway  *service.GatewayService
	Profiles *service.ProfileService
	Reports  *service.ReportService
	DB       handler.Pinger
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Options tune the middleware chain and handlers
type Options struct {
	AllowedOrigins       []string
	RateLimit            middleware.RateLimiterConfig
	SlowRequestThreshold time.Duration
	MaxUploadBytes       int64
	VitalsInterval       time.Duration
}

// NewRouter builds the engine with every route registered
func NewRouter(deps Dependencies, opts Options) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	if deps.Reports == nil {
		deps.Reports = service.NewReportService(pdf.NewPDFGenerator(logger), nil, logger)
	}

	r := gin.New()

	// Recovery must run first so it wraps everything below.
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.MetricsMiddleware(m))
	r.Use(middleware.RequestLoggingMiddleware(logger))
	r.Use(middleware.ErrorLoggingMiddleware(logger))
	if opts.SlowRequestThreshold > 0 {
		r.Use(middleware.SlowRequestLoggingMiddleware(logger, opts.SlowRequestThreshold))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "Route not found", Code: model.CodeNotFound})
	})

	health := handler.NewHealthHandler(deps.DB, logger)
	ai := handler.NewAIHandler(deps.Gateway, opts.MaxUploadBytes, logger)
	profiles := handler.NewProfileHandler(deps.Profiles, logger)
	reports := handler.NewReportHandler(deps.Reports, logger)
	vitals := handler.NewVitalsHandler(opts.VitalsInterval, logger)

	r.GET("/", health.Root)
	r.GET("/health", health.GetHealth)
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/openapi.yaml", gin.WrapH(apispec.Handler()))

	limiter := middleware.NewRateLimiter(opts.RateLimit, m.RateLimited.Inc)

	api := r.Group("/api", limiter.RateLimit())
	{
		api.POST("/analyze-symptoms", ai.AnalyzeSymptoms)
		api.POST("/analyze-report", ai.AnalyzeReport)
		api.POST("/suggest-remedies", ai.SuggestRemedies)
		api.POST("/chat", ai.Chat)
		api.POST("/chat-audio", ai.ChatAudio)
		api.POST("/generate-health-insights", ai.GenerateInsights)

		api.POST("/reports/pdf", reports.RenderPDF)
		api.GET("/reports/archive/*name", reports.GetArchivedPDF)

		api.GET("/vitals/stream", vitals.Stream)

		api.GET("/profile/:userId", profiles.GetProfile)
		api.PUT("/profile/:userId", profiles.SaveProfile)
		api.DELETE("/profile/:userId", profiles.DeleteProfile)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader, handler.ReportArchiveHeader},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}

	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
