package jobs

import (
	"context"
	"time"
)

// ListFilter narrows ListJobs. Zero values mean no filtering.
type ListFilter struct {
	UserID  *int64
	Status  *Status
	TypeID  string
	// AfterID skips the jobs up to this id, for keyset pagination
	AfterID int64
	Limit   int
}

// Store persists jobs and their results.
// GetJob and GetResult return ErrNotFound for missing rows.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id int64) (*Job, error)
	ListJobs(ctx context.Context, filter ListFilter) ([]*Job, error)
	FindSystemJob(ctx context.Context, typeID string) (*Job, error)

	// UpdateSchedule persists reference run, periodicity and data
	UpdateSchedule(ctx context.Context, job *Job) error
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	IncrementAckErrors(ctx context.Context, id int64) error
	ResetAckErrors(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, id int64, status Status, errMsg string, lastRun *time.Time) error

	// DeleteJob removes the job and all its results atomically
	DeleteJob(ctx context.Context, id int64) error
	DeleteFinishedUserJobs(ctx context.Context, before time.Time) (int64, error)

	// CountPending counts the WAIT jobs owned by the user
	CountPending(ctx context.Context, userID int64) (int, error)

	CreateResult(ctx context.Context, result *Result) error
	GetResult(ctx context.Context, id int64) (*Result, error)
	ListResults(ctx context.Context, jobID int64) ([]*Result, error)
	CountResults(ctx context.Context, jobID int64, onlyErrors bool) (int, error)
}

// Queue is the channel between the web tier and the job scheduler process
type Queue interface {
	// Ping returns an empty string when the scheduler is alive, else a message for the user
	Ping(ctx context.Context) (string, error)
	StartJob(ctx context.Context, job *Job) error
	RefreshJob(ctx context.Context, job *Job, data RefreshData) error
}
