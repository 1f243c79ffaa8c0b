package router

import (
	"net/http"

	"github.com/cuongbtq/bulk-sync/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "bulk-sync-service",
		})
	})

	syncHandler := handler.NewSyncHandler(deps)
	documentHandler := handler.NewDocumentHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		sync := v1.Group("/sync")
		{
			// GET /api/v1/sync/jobs - List recent jobs
			sync.GET("/jobs", syncHandler.ListJobs)

			// GET /api/v1/sync/jobs/:job_id - Poll job status and results
			sync.GET("/jobs/:job_id", syncHandler.GetJob)

			// POST /api/v1/sync/jobs/:job_id/cancel - Cancel a job
			sync.POST("/jobs/:job_id/cancel", syncHandler.CancelJob)

			// POST /api/v1/sync/:entity_type - Start a bulk sync job
			sync.POST("/:entity_type", syncHandler.StartSync)
		}

		documents := v1.Group("/documents")
		{
			// GET /api/v1/documents/:type - List mirrored documents
			documents.GET("/:type", documentHandler.ListDocuments)

			// GET /api/v1/documents/:type/count - Count mirrored documents
			documents.GET("/:type/count", documentHandler.CountDocuments)
		}
	}

	return r
}
