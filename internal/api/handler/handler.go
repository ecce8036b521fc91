package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/gin-gonic/gin"
)

// UserKey is the gin context key of the authenticated jobs.User
const UserKey = "user"

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Manager *jobs.Manager
	// Checkers are probed by the health endpoint, by name
	Checkers map[string]HealthChecker
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	manager  *jobs.Manager
	checkers map[string]HealthChecker
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		logger:   logger,
		manager:  deps.Manager,
		checkers: deps.Checkers,
	}
}

// CurrentUser returns the requester set by the identity middleware
func CurrentUser(c *gin.Context) (jobs.User, bool) {
	value, ok := c.Get(UserKey)
	if !ok {
		return jobs.User{}, false
	}
	user, ok := value.(jobs.User)
	return user, ok
}

// requireUser aborts with 401 when no requester is known
func requireUser(c *gin.Context) (jobs.User, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return user, ok
}

// loadJob resolves the :id parameter, answering 400 or 404 when it does not match a job
func (h *JobHandler) loadJob(c *gin.Context) (*jobs.Job, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return nil, false
	}

	job, err := h.manager.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return job, true
}

// statusFromError maps jobs errors onto HTTP status codes
func statusFromError(err error) int {
	var validationErr *jobs.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, jobs.ErrInvalidType):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *JobHandler) respondError(c *gin.Context, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}

	var validationErr *jobs.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(status, gin.H{
			"error": validationErr.Message,
			"field": validationErr.Field,
		})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
