// Package jobtypes holds the job types shipped with the scheduler.
package jobtypes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
)

// App is the application prefix of the built-in type ids
const App = "core"

var (
	BatchProcessTypeID        = jobs.GenerateTypeID(App, "batch_process")
	ReminderTypeID            = jobs.GenerateTypeID(App, "reminder")
	TempFilesCleanerTypeID    = jobs.GenerateTypeID(App, "temp_files_cleaner")
	FinishedJobsCleanerTypeID = jobs.GenerateTypeID(App, "finished_jobs_cleaner")
)

// Options holds the collaborators of the built-in types.
// The web tier only reads job types and may leave executors nil.
type Options struct {
	Logger            *slog.Logger
	Now               func() time.Time
	Entities          EntityProcessor
	Reminders         ReminderSender
	FinishedJobs      FinishedJobsDeleter
	TempDir           string
	PseudoPeriodHours int
	Retention         *jobs.Period
}

// Register adds the built-in types to registry
func Register(registry *jobs.Registry, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PseudoPeriodHours < 1 {
		opts.PseudoPeriodHours = 1
	}
	if opts.Retention == nil {
		opts.Retention = jobs.MustPeriod(jobs.PeriodWeeks, 1)
	}

	reminderPeriod, err := jobs.NewPeriod(jobs.PeriodHours, opts.PseudoPeriodHours)
	if err != nil {
		return &jobs.ConfigurationError{TypeID: ReminderTypeID, Reason: err.Error()}
	}

	return registry.Register(
		NewBatchProcess(opts.Entities, opts.Logger),
		NewReminder(reminderPeriod, opts.Reminders, opts.Now),
		NewTempFilesCleaner(opts.TempDir, opts.Now, opts.Logger),
		NewFinishedJobsCleaner(opts.FinishedJobs, opts.Retention, opts.Now),
	)
}

// cleanPeriodField validates a period submitted for a type-specific field
func cleanPeriodField(fields map[string]json.RawMessage, name string) (*jobs.Period, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, &jobs.ValidationError{Field: name, Message: "this field is required"}
	}

	p, err := jobs.PeriodFromJSON(raw)
	if err != nil {
		return nil, &jobs.ValidationError{Field: name, Message: err.Error()}
	}
	if p == nil {
		return nil, &jobs.ValidationError{Field: name, Message: "this field is required"}
	}
	return p, nil
}

// periodData is the payload shape of types configured with a single period
type periodData map[string]*jobs.Period

func decodePeriodField(job *jobs.Job, name string, fallback *jobs.Period) (*jobs.Period, error) {
	data := periodData{}
	if err := job.DecodeData(&data); err != nil {
		return nil, err
	}

	p, ok := data[name]
	if !ok || p == nil {
		return fallback, nil
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("job %d has an invalid %s: %w", job.ID, name, err)
	}
	return p, nil
}

func countResults(ctx context.Context, job *jobs.Job, results jobs.ResultReader) (total, failed int, err error) {
	total, err = results.CountResults(ctx, job.ID, false)
	if err != nil {
		return 0, 0, err
	}
	failed, err = results.CountResults(ctx, job.ID, true)
	if err != nil {
		return 0, 0, err
	}
	return total, failed, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
