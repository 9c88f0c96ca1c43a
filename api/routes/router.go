package routes

import (
	"agentscan/internal/services"

	"github.com/gin-gonic/gin"
)

func InitRouter(runService services.RunServiceMethods) *gin.Engine {
	router := gin.Default()

	api := router.Group("/api")
	{
		InitRunRoutes(api, runService)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}
