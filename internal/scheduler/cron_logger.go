package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger writes the cron library logs through slog
type cronLogger struct {
	logger *slog.Logger
}

// NewCronLogger returns a cron.Logger backed by logger. Cron info logs are debug logs here.
func NewCronLogger(logger *slog.Logger) cron.Logger {
	return &cronLogger{logger: logger.With(slog.String("component", "cron"))}
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{slog.Any("error", err)}, keysAndValues...)
	l.logger.Error(msg, args...)
}
