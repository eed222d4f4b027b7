package router

import (
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/catalog-migrator/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger.Component("http")))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.NewHealthHandler(deps).Health)

	importHandler := handler.NewImportHandler(deps)
	destinationHandler := handler.NewDestinationHandler(deps)
	runnerHandler := handler.NewRunnerHandler(deps)

	v1 := r.Group("/api/v1")
	{
		tenant := v1.Group("", UserMiddleware())
		{
			imports := tenant.Group("/imports")
			imports.POST("", importHandler.CreateImport)
			imports.GET("", importHandler.ListImports)
			imports.POST("/discover", importHandler.DiscoverImport)
			imports.GET("/:request_id", importHandler.GetImport)
			imports.GET("/:request_id/logs", importHandler.ListLogs)
			imports.GET("/:request_id/results", importHandler.ListResults)
			imports.POST("/:request_id/cancel", importHandler.CancelImport)

			tenant.PUT("/destination", destinationHandler.PutDestination)
			tenant.GET("/destination", destinationHandler.GetDestination)
		}

		ops := v1.Group("", RunnerAuthMiddleware(deps.RunnerToken))
		{
			// GET is accepted for schedulers that can only issue GETs
			ops.POST("/runner", runnerHandler.Tick)
			ops.GET("/runner", runnerHandler.Tick)
			ops.POST("/runner/:source", runnerHandler.Tick)
			ops.GET("/runner/:source", runnerHandler.Tick)

			ops.GET("/queue/stats", runnerHandler.QueueStats)
		}
	}

	return r
}
