package router

import (
	"fmt"

	"github.com/cuongbtq/jobscheduler/internal/api/dto"
	"github.com/cuongbtq/jobscheduler/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) (*gin.Engine, error) {
	if err := dto.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Initialize job handler
	jobHandler := handler.NewJobHandler(deps)

	// Health check endpoint
	r.GET("/health", jobHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(IdentityMiddleware())
	{
		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List all jobs, privileged users only
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/mine - List the jobs of the requester
			jobs.GET("/mine", jobHandler.ListMyJobs)

			// GET /api/v1/jobs/info?id=1&id=2 - Poll job statuses
			jobs.GET("/info", jobHandler.JobsInfo)

			// POST /api/v1/jobs - Create a new job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs/:id - Get job details
			jobs.GET("/:id", jobHandler.GetJob)

			// GET /api/v1/jobs/:id/results - Get job results
			jobs.GET("/:id/results", jobHandler.GetJobResults)

			// POST /api/v1/jobs/:id/edit - Edit the schedule of a periodic job
			jobs.POST("/:id/edit", jobHandler.EditJob)

			// POST /api/v1/jobs/:id/enable - Enable a system job
			jobs.POST("/:id/enable", jobHandler.EnableJob)

			// POST /api/v1/jobs/:id/disable - Disable a system job
			jobs.POST("/:id/disable", jobHandler.DisableJob)

			// POST /api/v1/jobs/:id/delete - Clear a finished job
			jobs.POST("/:id/delete", jobHandler.DeleteJob)
		}
	}

	return r, nil
}
