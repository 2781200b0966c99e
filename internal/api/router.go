package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jengzang/trails-backend-go/internal/config"
	"github.com/jengzang/trails-backend-go/internal/handler"
	"github.com/jengzang/trails-backend-go/internal/middleware"
	"github.com/jengzang/trails-backend-go/internal/stream"
)

// Handlers groups the HTTP handlers mounted by SetupRouter
type Handlers struct {
	Recording *handler.RecordingHandler
	Trails    *handler.TrailHandler
	Sync      *handler.SyncHandler
	Hub       *stream.Hub
	Limiter   *middleware.RateLimiter
}

// SetupRouter builds the gin engine
func SetupRouter(cfg *config.Config, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Trails Backend API is running",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.Owner(cfg.JWTSecret))
	if h.Limiter != nil {
		api.Use(middleware.RateLimit(h.Limiter))
	}
	{
		recording := api.Group("/recording")
		{
			recording.POST("/start", h.Recording.Start)
			recording.POST("/points", h.Recording.AddPoints)
			recording.POST("/pause", h.Recording.Pause)
			recording.POST("/resume", h.Recording.Resume)
			recording.POST("/stop", h.Recording.Stop)
			recording.GET("/state", h.Recording.State)
		}
		if h.Hub != nil {
			stream.RegisterRoutes(api, h.Hub)
		}

		trails := api.Group("/trails")
		{
			trails.GET("", h.Trails.GetTrails)
			trails.DELETE("", h.Trails.ClearTrails)
			trails.POST("/import", h.Trails.ImportGPX)
			trails.GET("/:id", h.Trails.GetTrailByID)
			trails.PUT("/:id", h.Trails.UpdateTrail)
			trails.DELETE("/:id", h.Trails.DeleteTrail)
			trails.GET("/:id/gpx", h.Trails.ExportGPX)
		}

		api.POST("/sync", h.Sync.RunSync)
		api.GET("/sync/status", h.Sync.GetStatus)
	}

	return r
}
