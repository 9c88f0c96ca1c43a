package routes

import (
	"agentscan/internal/handlers"
	"agentscan/internal/services"

	"github.com/gin-gonic/gin"
)

func InitRunRoutes(router *gin.RouterGroup, runService services.RunServiceMethods) {
	h := handlers.NewRunHandler(runService)

	runRoutes := router.Group("/runs")
	{
		runRoutes.POST("", h.StartRun)
		runRoutes.GET("", h.ListRuns)
		runRoutes.GET("/:id", h.GetRun)
		runRoutes.GET("/:id/report", h.GetReport)
		runRoutes.DELETE("/:id", h.DeleteRun)
	}
}
