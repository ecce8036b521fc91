package jobtypes

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
)

const delayField = "delay"

// TempFilesCleaner removes the temporary files older than a delay
type TempFilesCleaner struct {
	jobs.BaseType
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// NewTempFilesCleaner creates the temporary files cleaner type
func NewTempFilesCleaner(dir string, now func() time.Time, logger *slog.Logger) *TempFilesCleaner {
	day := jobs.MustPeriod(jobs.PeriodDays, 1)
	return &TempFilesCleaner{
		BaseType: jobs.BaseType{
			TypeID: TempFilesCleanerTypeID,
			Name:   "Temporary files cleaner",
			Class:  jobs.Periodic,
			Period: day,
			Data:   map[string]any{delayField: day.AsDict()},
		},
		dir:    dir,
		now:    now,
		logger: logger,
	}
}

func (t *TempFilesCleaner) Execute(ctx context.Context, job *jobs.Job, sink jobs.ResultSink) error {
	if t.dir == "" {
		return errors.New("no temporary directory configured")
	}

	delay, err := decodePeriodField(job, delayField, t.Period)
	if err != nil {
		return err
	}
	limit := delay.Sub(t.now())

	if _, err := os.Stat(t.dir); errors.Is(err, fs.ErrNotExist) {
		t.logger.Info("Temporary directory does not exist, nothing to clean", slog.String("dir", t.dir))
		return nil
	}

	removed := 0
	err = filepath.WalkDir(t.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().Before(limit) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			return sink.AddResult(ctx, &jobs.Result{JobID: job.ID, Messages: []string{err.Error()}})
		}
		removed++
		return nil
	})
	if err != nil {
		return err
	}

	t.logger.Info("Temporary files cleaned",
		slog.String("dir", t.dir),
		slog.Int("removed", removed),
		slog.Time("older_than", limit),
	)
	return nil
}

func (t *TempFilesCleaner) CleanData(fields map[string]json.RawMessage) (map[string]any, error) {
	delay, err := cleanPeriodField(fields, delayField)
	if err != nil {
		return nil, err
	}
	return map[string]any{delayField: delay.AsDict()}, nil
}

func (t *TempFilesCleaner) Stats(ctx context.Context, job *jobs.Job, results jobs.ResultReader) ([]string, error) {
	failed, err := results.CountResults(ctx, job.ID, true)
	if err != nil || failed == 0 {
		return nil, err
	}
	return []string{plural(failed, "file could not be removed.", "files could not be removed.")}, nil
}
