package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/jobscheduler/internal/api/dto"
	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateJob handles POST /api/v1/jobs
// Creates a job owned by the requester and asks the scheduler to start it
func (h *JobHandler) CreateJob(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	// 1. Validate request body
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	// 2. Create the job, the manager enforces the pending jobs cap
	job, err := h.manager.CreateForUser(c.Request.Context(), user, jobs.CreateParams{
		TypeID:   req.TypeID,
		Language: req.Language,
		Payload:  req.Payload,
	})
	switch {
	case errors.Is(err, jobs.ErrInvalidType):
		c.JSON(http.StatusBadRequest, gin.H{"error": jobs.InvalidJobTypeMessage})
		return
	case errors.Is(err, jobs.ErrTooManyJobs):
		message, msgErr := h.manager.MaxJobsMessage(c.Request.Context(), user)
		if msgErr != nil || message == "" {
			message = err.Error()
		}
		c.JSON(http.StatusConflict, gin.H{"error": message})
		return
	case err != nil:
		h.respondError(c, err)
		return
	}

	h.logger.Info("Job created",
		slog.Int64("job_id", job.ID),
		slog.String("type_id", job.TypeID),
		slog.Int64("user_id", user.ID),
	)

	// 3. Return the job, ack_errors tells whether the scheduler got it
	c.JSON(http.StatusCreated, h.jobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists every job; reserved to privileged users
func (h *JobHandler) ListJobs(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.manager.CheckListAll(user); err != nil {
		h.respondError(c, err)
		return
	}
	h.listJobs(c, user, jobs.ListFilter{})
}

// ListMyJobs handles GET /api/v1/jobs/mine
func (h *JobHandler) ListMyJobs(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	userID := user.ID
	h.listJobs(c, user, jobs.ListFilter{UserID: &userID})
}

func (h *JobHandler) listJobs(c *gin.Context, user jobs.User, filter jobs.ListFilter) {
	// 1. Parse query parameters
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	// 2. Decode cursor for pagination
	afterID, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	// 3. Query one extra job to know whether a next page exists
	filter.TypeID = req.TypeID
	filter.AfterID = afterID
	filter.Limit = req.PageSize + 1
	if req.Status != nil {
		status := jobs.Status(*req.Status)
		filter.Status = &status
	}

	list, err := h.manager.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	hasMore := len(list) > req.PageSize
	if hasMore {
		list = list[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(list))}
	for i, job := range list {
		resp.Jobs[i] = h.jobDTO(job)
	}
	if hasMore {
		resp.NextCursor = EncodeJobCursor(list[len(list)-1].ID)
	}

	resp.MaxJobsMessage, err = h.manager.MaxJobsMessage(c.Request.Context(), user)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetJob handles GET /api/v1/jobs/:id
// Jobs whose type is no longer registered are reported as missing
func (h *JobHandler) GetJob(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	if err := h.manager.CheckView(user, job); err != nil {
		h.respondError(c, err)
		return
	}

	t, ok := h.manager.Type(job)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": jobs.InvalidJobTypeMessage})
		return
	}

	ctx := c.Request.Context()
	stats, err := h.manager.Stats(ctx, job)
	if err != nil {
		h.respondError(c, err)
		return
	}
	snapshot, err := h.manager.StatusSnapshot(ctx, job)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.JobDetailDTO{
		JobDTO:          dto.NewJobDTO(job, t.VerboseName()),
		RealPeriodicity: h.manager.RealPeriodicity(job),
		Stats:           stats,
		Progress:        snapshot.Progress,
	})
}

// GetJobResults handles GET /api/v1/jobs/:id/results
func (h *JobHandler) GetJobResults(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	if err := h.manager.CheckView(user, job); err != nil {
		h.respondError(c, err)
		return
	}

	results, err := h.manager.Results(c.Request.Context(), job)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := dto.ResultsResponse{JobID: job.ID, Results: make([]dto.ResultDTO, len(results))}
	for i, result := range results {
		resp.Results[i] = dto.NewResultDTO(result)
	}
	c.JSON(http.StatusOK, resp)
}

// EditJob handles POST /api/v1/jobs/:id/edit
// Accepts a JSON body or the fields of the edit form
func (h *JobHandler) EditJob(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	if err := h.manager.CheckEdit(user, job); err != nil {
		h.respondError(c, err)
		return
	}

	req, err := bindEditRequest(c)
	if err != nil {
		var validationErr *jobs.ValidationError
		if errors.As(err, &validationErr) {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	outcome, err := h.manager.EditSchedule(c.Request.Context(), job, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOutcome(c, outcome)
}

// EnableJob handles POST /api/v1/jobs/:id/enable
func (h *JobHandler) EnableJob(c *gin.Context) {
	h.setEnabled(c, true)
}

// DisableJob handles POST /api/v1/jobs/:id/disable
func (h *JobHandler) DisableJob(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *JobHandler) setEnabled(c *gin.Context, enabled bool) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	if err := h.manager.CheckEdit(user, job); err != nil {
		h.respondError(c, err)
		return
	}

	var (
		outcome *jobs.Outcome
		err     error
	)
	if enabled {
		outcome, err = h.manager.Enable(c.Request.Context(), job)
	} else {
		outcome, err = h.manager.Disable(c.Request.Context(), job)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOutcome(c, outcome)
}

// DeleteJob handles POST /api/v1/jobs/:id/delete
// Clears a finished job and its results
func (h *JobHandler) DeleteJob(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	if err := h.manager.CheckClear(user, job); err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.manager.Clear(c.Request.Context(), job); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// JobsInfo handles GET /api/v1/jobs/info?id=1&id=2
// Polls the status of several jobs at once
func (h *JobHandler) JobsInfo(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	result, err := h.manager.PollStatus(c.Request.Context(), c.QueryArray("id"), user)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result.Body())
}

// Health handles GET /health
// The scheduler state is informative, only the backing services decide the status code
func (h *JobHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	checks := gin.H{}

	for name, checker := range h.checkers {
		if err := checker.HealthCheck(ctx); err != nil {
			h.logger.Warn("Health check failed", slog.String("service", name), slog.Any("error", err))
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	scheduler := "ok"
	if msg := h.manager.Ping(ctx); msg != "" {
		scheduler = msg
	}
	checks["scheduler"] = scheduler

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":  state,
		"service": "job-api-service",
		"checks":  checks,
	})
}

func (h *JobHandler) respondOutcome(c *gin.Context, outcome *jobs.Outcome) {
	c.JSON(http.StatusOK, dto.OutcomeResponse{
		Job:        h.jobDTO(outcome.Job),
		Refreshed:  outcome.Refreshed,
		QueueError: outcome.QueueError,
	})
}

func (h *JobHandler) jobDTO(job *jobs.Job) dto.JobDTO {
	name := ""
	if t, ok := h.manager.Type(job); ok {
		name = t.VerboseName()
	}
	return dto.NewJobDTO(job, name)
}
