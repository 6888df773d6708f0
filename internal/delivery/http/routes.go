package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/winemarket/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		offers := v1.Group("/offers")
		{
			offers.POST("/refresh", handler.RefreshAll)
			offers.POST("/refresh/wines/:wineId", handler.RefreshWine)
			offers.GET("/diagnose", handler.Diagnose)
		}

		v1.POST("/sources/detect", handler.DetectPlatform)
		v1.GET("/wines/:wineId/offers", handler.ListWineOffers)
	}

	return router
}
