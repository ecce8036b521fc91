package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/cuongbtq/jobscheduler/internal/queue"
)

// dispatchCommands handles the commands of the web tier one at a time, in arrival order
func (s *Scheduler) dispatchCommands(ctx context.Context, commands <-chan *queue.Delivery) {
	s.logger.Info("Command dispatcher started",
		slog.String("instance_id", s.instanceID),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Command dispatcher stopped - context canceled")
			return

		case delivery, ok := <-commands:
			if !ok {
				s.logger.Warn("Command channel closed")
				return
			}

			err := s.handleCommand(ctx, delivery.Command)
			if err == nil {
				if ackErr := delivery.Ack(); ackErr != nil {
					s.logger.Error("Failed to ACK command",
						slog.String("command_id", delivery.Command.ID),
						slog.Any("error", ackErr),
					)
				}
				continue
			}

			requeue := shouldRequeue(err)
			s.logger.Error("Command processing failed",
				slog.String("command_id", delivery.Command.ID),
				slog.String("command", delivery.Command.Type),
				slog.Int64("job_id", delivery.Command.JobID),
				slog.Bool("requeue", requeue),
				slog.Any("error", err),
			)
			if nackErr := delivery.Nack(requeue); nackErr != nil {
				s.logger.Error("Failed to NACK command",
					slog.String("command_id", delivery.Command.ID),
					slog.Any("error", nackErr),
				)
			}
		}
	}
}

// shouldRequeue keeps the commands which may succeed later, ie storage failures
func shouldRequeue(err error) bool {
	if errors.Is(err, jobs.ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var validationErr *jobs.ValidationError
	return !errors.As(err, &validationErr)
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd queue.Command) error {
	s.logger.Debug("Command received",
		slog.String("command_id", cmd.ID),
		slog.String("command", cmd.Type),
		slog.Int64("job_id", cmd.JobID),
	)

	switch cmd.Type {
	case queue.CommandStart:
		job, err := s.manager.Get(ctx, cmd.JobID)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				// Cleared before the scheduler got the command
				s.logger.Warn("Job to start does not exist", slog.Int64("job_id", cmd.JobID))
				return nil
			}
			return fmt.Errorf("failed to load job %d: %w", cmd.JobID, err)
		}
		if err := s.manager.ForgetAckErrors(ctx, job); err != nil {
			return err
		}
		s.startJob(ctx, job)
		return nil

	case queue.CommandRefresh:
		if cmd.Data == nil {
			return &jobs.ValidationError{Field: "data", Message: "refresh command without data"}
		}
		return s.refreshJob(ctx, cmd.JobID, *cmd.Data)

	default:
		return &jobs.ValidationError{Field: "command", Message: fmt.Sprintf("unknown command %q", cmd.Type)}
	}
}

// startJob runs a one-shot job now; recurring jobs join the timetable instead
func (s *Scheduler) startJob(ctx context.Context, job *jobs.Job) {
	t, ok := s.manager.Type(job)
	if ok && t.Periodic() != jobs.NotPeriodic {
		s.schedule(job)
		return
	}

	if !job.Enabled {
		s.logger.Info("Disabled job not started", slog.Int64("job_id", job.ID))
		return
	}
	s.enqueue(ctx, job)
}

// refreshJob applies a new schedule. Jobs of the timetable are updated
// from the snapshot alone, the others are read back from storage.
func (s *Scheduler) refreshJob(ctx context.Context, jobID int64, data jobs.RefreshData) error {
	job, ok := s.scheduled(jobID)
	if !ok {
		loaded, err := s.manager.Get(ctx, jobID)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				s.logger.Warn("Job to refresh does not exist", slog.Int64("job_id", jobID))
				return nil
			}
			return fmt.Errorf("failed to load job %d: %w", jobID, err)
		}
		job = loaded
	}

	if err := data.Apply(job); err != nil {
		return &jobs.ValidationError{Field: "data", Message: err.Error()}
	}

	s.logger.Info("Job refreshed",
		slog.Int64("job_id", job.ID),
		slog.Bool("enabled", job.Enabled),
		slog.String("reference_run", data.ReferenceRun),
	)

	t, ok := s.manager.Type(job)
	if !ok || t.Periodic() == jobs.NotPeriodic {
		return nil
	}
	s.schedule(job)
	return nil
}
