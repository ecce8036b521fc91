package jobtypes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
)

const retentionField = "retention"

// FinishedJobsDeleter removes finished user jobs, with their results
type FinishedJobsDeleter interface {
	DeleteFinishedUserJobs(ctx context.Context, before time.Time) (int64, error)
}

// FinishedJobsCleaner removes the finished user jobs older than a retention period
type FinishedJobsCleaner struct {
	jobs.BaseType
	store FinishedJobsDeleter
	now   func() time.Time
}

// NewFinishedJobsCleaner creates the finished jobs cleaner type
func NewFinishedJobsCleaner(store FinishedJobsDeleter, retention *jobs.Period, now func() time.Time) *FinishedJobsCleaner {
	return &FinishedJobsCleaner{
		BaseType: jobs.BaseType{
			TypeID: FinishedJobsCleanerTypeID,
			Name:   "Finished jobs cleaner",
			Class:  jobs.Periodic,
			Period: jobs.MustPeriod(jobs.PeriodDays, 1),
			Data:   map[string]any{retentionField: retention.AsDict()},
		},
		store: store,
		now:   now,
	}
}

func (t *FinishedJobsCleaner) Execute(ctx context.Context, job *jobs.Job, sink jobs.ResultSink) error {
	if t.store == nil {
		return errors.New("no job store configured")
	}

	retention, err := decodePeriodField(job, retentionField, jobs.MustPeriod(jobs.PeriodWeeks, 1))
	if err != nil {
		return err
	}

	deleted, err := t.store.DeleteFinishedUserJobs(ctx, retention.Sub(t.now()))
	if err != nil {
		return fmt.Errorf("failed to delete finished jobs: %w", err)
	}

	if deleted > 0 {
		return sink.AddResult(ctx, &jobs.Result{JobID: job.ID})
	}
	return nil
}

func (t *FinishedJobsCleaner) CleanData(fields map[string]json.RawMessage) (map[string]any, error) {
	retention, err := cleanPeriodField(fields, retentionField)
	if err != nil {
		return nil, err
	}
	return map[string]any{retentionField: retention.AsDict()}, nil
}
