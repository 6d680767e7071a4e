package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/paperscope/backend/internal/handlers"
)

type RouterConfig struct {
	Env         string
	SyncHandler *handlers.SyncHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/sync", cfg.SyncHandler.SyncAll)
		api.POST("/sync/graph", cfg.SyncHandler.SyncGraph)
		api.POST("/sync/vectors", cfg.SyncHandler.SyncVectors)
		api.POST("/reconcile", cfg.SyncHandler.Reconcile)
	}

	return router
}
