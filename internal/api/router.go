package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/service"
	"github.com/passgate/passgate/pkg/config"
	"github.com/passgate/passgate/pkg/middleware"
)

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(cfg *config.Config, services *service.Services, logger *zap.Logger) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.Server.RPOrigin},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers := NewHandlers(services, cfg, logger)
	rateLimiter := middleware.NewAuthRateLimiter(cfg.Server.AuthRateLimit, logger)

	router.GET("/status", handlers.Status)
	router.GET("/health", handlers.Status)

	auth := router.Group("/auth")
	{
		auth.POST("/initiate", middleware.AuthRateLimit(rateLimiter), handlers.Initiate)

		// the remaining login steps require the provisional session token
		pending := auth.Group("/", middleware.Session(services.Sessions, logger))
		{
			pending.POST("/two-factor/options", middleware.AuthRateLimit(rateLimiter), handlers.SecondFactorOptions)
			pending.POST("/two-factor", middleware.AuthRateLimit(rateLimiter), handlers.CompleteSecondFactor)
			pending.POST("/signout", handlers.SignOut)
		}
	}

	credentials := router.Group("/credentials",
		middleware.Session(services.Sessions, logger),
		middleware.RequireFullAuth())
	{
		credentials.POST("/options", handlers.CredentialOptions)
		credentials.POST("", handlers.RegisterCredential)
		credentials.GET("", handlers.ListCredentials)
		credentials.POST("/:id/rename", handlers.RenameCredential)
		credentials.DELETE("/:id", handlers.DeleteCredential)
	}

	return router
}
