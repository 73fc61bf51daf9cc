// Package routes defines the HTTP routes for the chat service.
package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/myworkflows/chat-service/internal/api/handlers"
	"github.com/myworkflows/chat-service/internal/api/middleware"
	"github.com/myworkflows/chat-service/internal/api/ws"
)

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler   *handlers.HealthHandler
	MessagesHandler *handlers.MessagesHandler
	UsageHandler    *handlers.UsageHandler
	WSHandler       *ws.Handler
	AuthMiddleware  *middleware.AuthMiddleware
	EnableDocs      bool
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	// The WebSocket authenticates during the handshake itself.
	r.GET("/ws", cfg.WSHandler.Handle)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", cfg.HealthHandler.Health)
		v1.GET("/ready", cfg.HealthHandler.Ready)
		v1.GET("/live", cfg.HealthHandler.Live)

		v1.GET("/chat/ws", cfg.WSHandler.Handle)

		protected := v1.Group("")
		protected.Use(cfg.AuthMiddleware.Authenticate())

		chat := protected.Group("/chat")
		{
			chat.POST("/stream", cfg.MessagesHandler.StreamChat)

			workflows := chat.Group("/workflows/:workflowId")
			{
				workflows.GET("/messages", cfg.MessagesHandler.GetMessages)
				workflows.DELETE("/messages", cfg.MessagesHandler.ClearMessages)
			}
		}

		protected.GET("/usage", cfg.UsageHandler.GetUsage)
	}

	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware, corsCfg middleware.CORSConfig) {
	r.Use(loggingMw.RequestLogger())
	r.Use(loggingMw.Logger())
	r.Use(errorMw.Recovery())
	r.Use(middleware.NewCORSMiddleware(corsCfg))

	r.HandleMethodNotAllowed = true
	r.NoRoute(middleware.NotFound())
	r.NoMethod(middleware.MethodNotAllowed())

	Setup(r, cfg)
}
