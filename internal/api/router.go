package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/grade_go_server/config"
	"github.com/qs3c/grade_go_server/internal/api/handler"
)

type Router struct {
	jobHandler        *handler.JobHandler
	submissionHandler *handler.SubmissionHandler
	batchHandler      *handler.BatchHandler
	cfg               *config.Config
}

func NewRouter(
	jobHandler *handler.JobHandler,
	submissionHandler *handler.SubmissionHandler,
	batchHandler *handler.BatchHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		jobHandler:        jobHandler,
		submissionHandler: submissionHandler,
		batchHandler:      batchHandler,
		cfg:               cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	api := engine.Group("/api/v1")
	{
		jobs := api.Group("/jobs")
		{
			jobs.POST("", r.jobHandler.Create)
			jobs.GET("/:id", r.jobHandler.Get)
			jobs.POST("/:id/submissions", r.jobHandler.Upload)
			jobs.POST("/:id/enqueue", r.jobHandler.Enqueue)
			jobs.GET("/:id/progress", r.jobHandler.Progress)
			jobs.POST("/:id/retry-failed", r.jobHandler.RetryFailed)
		}

		submissions := api.Group("/submissions")
		{
			submissions.GET("/:id", r.submissionHandler.Get)
			submissions.POST("/:id/retry", r.submissionHandler.Retry)
		}

		batches := api.Group("/batches")
		{
			batches.POST("", r.batchHandler.Create)
			batches.GET("/:id", r.batchHandler.Get)
			batches.POST("/:id/start", r.batchHandler.Start)
			batches.POST("/:id/pause", r.batchHandler.Pause)
			batches.POST("/:id/resume", r.batchHandler.Resume)
			batches.POST("/:id/cancel", r.batchHandler.Cancel)
			batches.POST("/:id/archive", r.batchHandler.Archive)
			batches.POST("/:id/retry-failed", r.batchHandler.RetryFailed)
			batches.GET("/:id/progress", r.batchHandler.Progress)
			batches.PUT("/:id/jobs/:jobID", r.batchHandler.AssignJob)
			batches.DELETE("/:id/jobs/:jobID", r.batchHandler.RemoveJob)
		}
	}

	return engine
}
