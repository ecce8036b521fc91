package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
)

// processJob runs a job with a timeout and records its outcome.
// The returned error only reports bookkeeping failures; a failed run is recorded on the job.
func (s *Scheduler) processJob(ctx context.Context, job *jobs.Job) error {
	t, ok := s.manager.Type(job)
	if !ok {
		s.logger.Warn("Job has an invalid type, not executed",
			slog.Int64("job_id", job.ID),
			slog.String("type_id", job.TypeID),
		)
		return s.manager.MarkFailed(ctx, job, jobs.InvalidJobTypeMessage)
	}

	// A one-shot job may be started twice, by a command and by the startup recovery
	if t.Periodic() == jobs.NotPeriodic {
		current, err := s.manager.Get(ctx, job.ID)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				s.logger.Warn("Job was cleared before running", slog.Int64("job_id", job.ID))
				return nil
			}
			return err
		}
		if current.Status.IsFinished() {
			s.logger.Info("Job already finished, skipping", slog.Int64("job_id", job.ID))
			return nil
		}
		*job = *current
	}

	if err := s.manager.MarkRunning(ctx, job); err != nil {
		return err
	}

	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	runErr := s.execute(jobCtx, t, job)
	if runErr != nil {
		s.logger.Error("Job execution failed",
			slog.Int64("job_id", job.ID),
			slog.String("type_id", job.TypeID),
			slog.Any("error", runErr),
		)
	} else {
		s.logger.Info("Job completed successfully",
			slog.Int64("job_id", job.ID),
			slog.String("type_id", job.TypeID),
		)
	}

	return s.manager.MarkFinished(ctx, job, runErr)
}

// execute runs the type of a job, turning a panic into an error
func (s *Scheduler) execute(ctx context.Context, t jobs.Type, job *jobs.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %d panicked: %v", job.ID, r)
		}
	}()

	if err := t.Execute(ctx, job, s.manager); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("job execution canceled: %w", err)
	}
	return nil
}
