// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"chemdash/internal/domain/dashboard"
	"chemdash/internal/domain/reports"
	"chemdash/internal/infrastructure/http/v1/handlers"
	"chemdash/internal/infrastructure/http/v1/middleware"
	"chemdash/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Reports computes turnover views
	Reports *reports.Service

	// Views is the merged feed view stream
	Views dashboard.Views

	// Quality is the data-quality monitor (optional)
	Quality *dashboard.QualityMonitor

	// History reads persisted quality reports (optional)
	History handlers.QualityHistory

	// Health serves /health endpoints
	Health *handlers.HealthHandler

	// ServiceName names server spans
	ServiceName string

	// TracingEnabled turns on otelgin spans
	TracingEnabled bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled))
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	if cfg.Health != nil {
		health := router.Group("/health")
		{
			health.GET("/live", cfg.Health.Live)
			health.GET("/ready", cfg.Health.Ready)
			health.GET("/info", cfg.Health.Info)
		}
	}

	base := handlers.NewBaseHandler()
	dash := handlers.NewDashboardHandler(base, cfg.Reports, cfg.Views, cfg.Quality, cfg.History, cfg.Logger)

	api := router.Group("/api/v1/dashboard", middleware.TagSpan())
	dash.RegisterRoutes(api)

	return router
}
