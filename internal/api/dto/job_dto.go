package dto

import (
	"encoding/json"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
)

type CreateJobRequest struct {
	TypeID   string         `json:"type_id" binding:"required"`
	Language string         `json:"language" binding:"omitempty,max=10"`
	Payload  map[string]any `json:"payload"`
}

type ListJobsRequest struct {
	TypeID   string `form:"type_id"`
	Status   *int   `form:"status" binding:"omitempty,oneof=1 10 20"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs           []JobDTO `json:"jobs"`
	NextCursor     string   `json:"next_cursor,omitempty"`
	MaxJobsMessage string   `json:"max_jobs_message,omitempty"`
}

// PeriodDTO is a period as submitted by clients
type PeriodDTO struct {
	Type  string `json:"type" binding:"required,periodunit"`
	Value int    `json:"value" binding:"required,min=1,max=52560000"`
}

// Period converts the submitted period
func (p *PeriodDTO) Period() *jobs.Period {
	if p == nil {
		return nil
	}
	return &jobs.Period{Type: jobs.PeriodUnit(p.Type), Value: p.Value}
}

// EditJobRequest is a schedule edit. Data holds the type-specific fields.
type EditJobRequest struct {
	ReferenceRun string                     `json:"reference_run"`
	Periodicity  *PeriodDTO                 `json:"periodicity"`
	Data         map[string]json.RawMessage `json:"data"`
}

type JobDTO struct {
	ID           int64           `json:"id"`
	TypeID       string          `json:"type_id"`
	Type         string          `json:"type"`
	UserID       *int64          `json:"user_id"`
	Language     string          `json:"language"`
	Status       int             `json:"status"`
	StatusLabel  string          `json:"status_label"`
	Error        string          `json:"error,omitempty"`
	Enabled      bool            `json:"enabled"`
	Data         json.RawMessage `json:"data"`
	Periodicity  *jobs.Period    `json:"periodicity"`
	ReferenceRun string          `json:"reference_run"`
	LastRun      *string         `json:"last_run"`
	AckErrors    int             `json:"ack_errors"`
	CreatedAt    string          `json:"created_at"`
}

// NewJobDTO renders a job. typeName is empty for jobs whose type is not registered.
func NewJobDTO(job *jobs.Job, typeName string) JobDTO {
	out := JobDTO{
		ID:           job.ID,
		TypeID:       job.TypeID,
		Type:         typeName,
		Language:     job.Language,
		Status:       int(job.Status),
		StatusLabel:  job.Status.String(),
		Error:        job.Error,
		Enabled:      job.Enabled,
		Data:         job.RawData,
		Periodicity:  job.Periodicity,
		ReferenceRun: jobs.FormatISO8601(job.ReferenceRun),
		AckErrors:    job.AckErrors,
		CreatedAt:    jobs.FormatISO8601(job.CreatedAt),
	}
	if id, ok := job.Owner.UserID(); ok {
		out.UserID = &id
	}
	if job.LastRun != nil {
		lastRun := jobs.FormatISO8601(*job.LastRun)
		out.LastRun = &lastRun
	}
	if len(out.Data) == 0 {
		out.Data = json.RawMessage("{}")
	}
	return out
}

type JobDetailDTO struct {
	JobDTO
	RealPeriodicity *jobs.Period  `json:"real_periodicity"`
	Stats           []string      `json:"stats"`
	Progress        jobs.Progress `json:"progress"`
}

type ResultDTO struct {
	ID        int64    `json:"id"`
	EntityID  *int64   `json:"entity_id"`
	Messages  []string `json:"messages"`
	CreatedAt string   `json:"created_at"`
}

// NewResultDTO renders a job result
func NewResultDTO(result *jobs.Result) ResultDTO {
	messages := result.Messages
	if messages == nil {
		messages = []string{}
	}
	return ResultDTO{
		ID:        result.ID,
		EntityID:  result.EntityID,
		Messages:  messages,
		CreatedAt: jobs.FormatISO8601(result.CreatedAt),
	}
}

type ResultsResponse struct {
	JobID   int64       `json:"job_id"`
	Results []ResultDTO `json:"results"`
}

// OutcomeResponse answers schedule mutations. QueueError reports a scheduler which could not be notified.
type OutcomeResponse struct {
	Job        JobDTO `json:"job"`
	Refreshed  bool   `json:"refreshed"`
	QueueError string `json:"queue_error,omitempty"`
}
