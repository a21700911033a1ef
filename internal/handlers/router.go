package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mossy-p/webrtc-calling/config"
	"github.com/mossy-p/webrtc-calling/internal/directory"
	"github.com/mossy-p/webrtc-calling/internal/middleware"
	"github.com/mossy-p/webrtc-calling/internal/relay"
)

// SetupRouter wires every HTTP and WebSocket endpoint of the relay server.
func SetupRouter(cfg *config.Config, r *relay.Relay, dir directory.Directory, log *slog.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	// Global CORS middleware (runs before routing)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := NewAuthHandler(dir, cfg.JWTSecret, cfg.TokenTTL, log)
	users := NewUserHandler(dir, log)
	calls := NewCallHandler(r, log)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/login", auth.Login)
		apiGroup.GET("/users/:id", middleware.JWTAuth(cfg.JWTSecret), users.GetUser)
	}

	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/call", middleware.JWTAuth(cfg.JWTSecret), calls.HandleCall)
	}

	return router
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request completed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
