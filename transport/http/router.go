package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/layer-3/pkpauth/internal/ratelimit"
)

// SetupRouter sets up the Gin router. limiter may be nil to disable rate limiting.
func SetupRouter(authService AuthService, limiter *ratelimit.MapLimiter, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	handlers := NewAuthHandlers(authService, logger)

	router.GET("/healthz", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/")
	api.Use(RateLimitMiddleware(limiter))
	{
		api.POST("/auth/method-id", handlers.AuthMethodID)
		api.POST("/pkps/fetch", handlers.FetchPKPs)
		api.POST("/pkps/mint", handlers.MintPKP)
		api.POST("/sessions", handlers.SessionSigs)
		api.POST("/sessions/validate", handlers.ValidateSessionSigs)
	}

	return router
}
