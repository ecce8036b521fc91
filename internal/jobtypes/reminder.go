package jobtypes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
)

// ReminderSender sends the reminders which are due at a given time
type ReminderSender interface {
	SendDue(ctx context.Context, now time.Time) (int, error)
}

// Reminder sends due reminders. Its period is fixed by configuration.
type Reminder struct {
	jobs.BaseType
	sender ReminderSender
	now    func() time.Time
}

// NewReminder creates the reminder type
func NewReminder(period *jobs.Period, sender ReminderSender, now func() time.Time) *Reminder {
	return &Reminder{
		BaseType: jobs.BaseType{
			TypeID: ReminderTypeID,
			Name:   "Reminders",
			Class:  jobs.PseudoPeriodic,
			Period: period,
		},
		sender: sender,
		now:    now,
	}
}

func (t *Reminder) Execute(ctx context.Context, job *jobs.Job, sink jobs.ResultSink) error {
	if t.sender == nil {
		return errors.New("no reminder sender configured")
	}

	sent, err := t.sender.SendDue(ctx, t.now())
	if err != nil {
		if addErr := sink.AddResult(ctx, &jobs.Result{JobID: job.ID, Messages: []string{err.Error()}}); addErr != nil {
			return errors.Join(err, addErr)
		}
		return fmt.Errorf("failed to send reminders: %w", err)
	}

	if sent > 0 {
		return sink.AddResult(ctx, &jobs.Result{JobID: job.ID})
	}
	return nil
}

func (t *Reminder) Stats(ctx context.Context, job *jobs.Job, results jobs.ResultReader) ([]string, error) {
	failed, err := results.CountResults(ctx, job.ID, true)
	if err != nil {
		return nil, err
	}
	if failed == 0 {
		return nil, nil
	}
	return []string{plural(failed, "run failed to send reminders.", "runs failed to send reminders.")}, nil
}

// LogReminderSender logs instead of sending. Reminders belong to the application layer.
type LogReminderSender struct {
	Logger *slog.Logger
}

func (s *LogReminderSender) SendDue(ctx context.Context, now time.Time) (int, error) {
	s.Logger.Info("Checking due reminders", slog.Time("now", now))
	return 0, nil
}
