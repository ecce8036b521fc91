package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/cuongbtq/jobscheduler/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// Schema creates the tables used by Postgres
//
//go:embed schema.sql
var Schema string

const jobColumns = `id, type_id, user_id, language, created_at, status, error,
	enabled, raw_data, periodicity, reference_run, last_run, ack_errors`

type jobRow struct {
	ID           int64         `db:"id"`
	TypeID       string        `db:"type_id"`
	UserID       sql.NullInt64 `db:"user_id"`
	Language     string        `db:"language"`
	CreatedAt    time.Time     `db:"created_at"`
	Status       int           `db:"status"`
	Error        string        `db:"error"`
	Enabled      bool          `db:"enabled"`
	RawData      []byte        `db:"raw_data"`
	Periodicity  []byte        `db:"periodicity"`
	ReferenceRun time.Time     `db:"reference_run"`
	LastRun      sql.NullTime  `db:"last_run"`
	AckErrors    int           `db:"ack_errors"`
}

func (r *jobRow) toJob() (*jobs.Job, error) {
	periodicity, err := jobs.PeriodFromJSON(r.Periodicity)
	if err != nil {
		return nil, fmt.Errorf("job %d has an invalid periodicity: %w", r.ID, err)
	}

	job := &jobs.Job{
		ID:           r.ID,
		TypeID:       r.TypeID,
		Owner:        jobs.OwnerFromNull(r.UserID),
		Language:     r.Language,
		CreatedAt:    r.CreatedAt,
		Status:       jobs.Status(r.Status),
		Error:        r.Error,
		Enabled:      r.Enabled,
		RawData:      json.RawMessage(r.RawData),
		Periodicity:  periodicity,
		ReferenceRun: r.ReferenceRun,
		AckErrors:    r.AckErrors,
	}
	if r.LastRun.Valid {
		t := r.LastRun.Time
		job.LastRun = &t
	}
	return job, nil
}

type resultRow struct {
	ID        int64         `db:"id"`
	JobID     int64         `db:"job_id"`
	EntityID  sql.NullInt64 `db:"entity_id"`
	Messages  []byte        `db:"messages"`
	CreatedAt time.Time     `db:"created_at"`
}

func (r *resultRow) toResult() (*jobs.Result, error) {
	result := &jobs.Result{
		ID:        r.ID,
		JobID:     r.JobID,
		CreatedAt: r.CreatedAt,
	}
	if r.EntityID.Valid {
		id := r.EntityID.Int64
		result.EntityID = &id
	}
	if len(r.Messages) > 0 {
		if err := json.Unmarshal(r.Messages, &result.Messages); err != nil {
			return nil, fmt.Errorf("result %d has invalid messages: %w", r.ID, err)
		}
	}
	return result, nil
}

// Postgres stores jobs in PostgreSQL
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres creates a store on top of an open database
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func periodicityParam(p *jobs.Period) (any, error) {
	if p == nil {
		return nil, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode periodicity: %w", err)
	}
	return string(raw), nil
}

func rawDataParam(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func (s *Postgres) CreateJob(ctx context.Context, job *jobs.Job) error {
	periodicity, err := periodicityParam(job.Periodicity)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (
			type_id, user_id, language, status, error,
			enabled, raw_data, periodicity, reference_run, ack_errors
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)
		RETURNING id, created_at
	`

	err = s.db.QueryRowxContext(
		ctx,
		query,
		job.TypeID,
		job.Owner.Null(),
		job.Language,
		int(job.Status),
		job.Error,
		job.Enabled,
		rawDataParam(job.RawData),
		periodicity,
		job.ReferenceRun,
		job.AckErrors,
	).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Postgres) GetJob(ctx context.Context, id int64) (*jobs.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toJob()
}

func (s *Postgres) ListJobs(ctx context.Context, filter jobs.ListFilter) ([]*jobs.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, *filter.UserID)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, int(*filter.Status))
		argIdx++
	}

	if filter.TypeID != "" {
		query += fmt.Sprintf(" AND type_id = $%d", argIdx)
		args = append(args, filter.TypeID)
		argIdx++
	}

	if filter.AfterID > 0 {
		query += fmt.Sprintf(" AND id > $%d", argIdx)
		args = append(args, filter.AfterID)
		argIdx++
	}

	query += " ORDER BY id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	list := make([]*jobs.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toJob()
		if err != nil {
			return nil, err
		}
		list = append(list, job)
	}
	return list, nil
}

func (s *Postgres) FindSystemJob(ctx context.Context, typeID string) (*jobs.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE type_id = $1 AND user_id IS NULL ORDER BY id LIMIT 1`

	if err := s.db.GetContext(ctx, &row, query, typeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find system job: %w", err)
	}

	return row.toJob()
}

func (s *Postgres) UpdateSchedule(ctx context.Context, job *jobs.Job) error {
	periodicity, err := periodicityParam(job.Periodicity)
	if err != nil {
		return err
	}

	query := `UPDATE jobs SET reference_run = $2, periodicity = $3, raw_data = $4 WHERE id = $1`
	return s.execOne(ctx, "update schedule", query, job.ID, job.ReferenceRun, periodicity, rawDataParam(job.RawData))
}

func (s *Postgres) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	query := `UPDATE jobs SET enabled = $2 WHERE id = $1`
	return s.execOne(ctx, "set enabled", query, id, enabled)
}

func (s *Postgres) IncrementAckErrors(ctx context.Context, id int64) error {
	query := `UPDATE jobs SET ack_errors = ack_errors + 1 WHERE id = $1`
	return s.execOne(ctx, "increment ack errors", query, id)
}

func (s *Postgres) ResetAckErrors(ctx context.Context, id int64) error {
	query := `UPDATE jobs SET ack_errors = 0 WHERE id = $1`
	return s.execOne(ctx, "reset ack errors", query, id)
}

func (s *Postgres) UpdateStatus(ctx context.Context, id int64, status jobs.Status, errMsg string, lastRun *time.Time) error {
	var last sql.NullTime
	if lastRun != nil {
		last = sql.NullTime{Time: *lastRun, Valid: true}
	}

	query := `UPDATE jobs SET status = $2, error = $3, last_run = COALESCE($4, last_run) WHERE id = $1`
	return s.execOne(ctx, "update status", query, id, int(status), errMsg, last)
}

func (s *Postgres) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if affected == 0 {
		return jobs.ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteJob(ctx context.Context, id int64) error {
	return postgresql.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM job_results WHERE job_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete job results: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
		if affected == 0 {
			return jobs.ErrNotFound
		}
		return nil
	})
}

func (s *Postgres) DeleteFinishedUserJobs(ctx context.Context, before time.Time) (int64, error) {
	finished := `user_id IS NOT NULL AND status IN ($1, $2) AND created_at < $3`
	args := []interface{}{int(jobs.StatusOK), int(jobs.StatusError), before}

	var deleted int64
	err := postgresql.Transact(ctx, s.db, func(tx *sqlx.Tx) error {
		query := `DELETE FROM job_results WHERE job_id IN (SELECT id FROM jobs WHERE ` + finished + `)`
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete finished job results: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE `+finished, args...)
		if err != nil {
			return fmt.Errorf("failed to delete finished jobs: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *Postgres) CountPending(ctx context.Context, userID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM jobs WHERE user_id = $1 AND status = $2`
	if err := s.db.GetContext(ctx, &count, query, userID, int(jobs.StatusWait)); err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return count, nil
}

func (s *Postgres) CreateResult(ctx context.Context, result *jobs.Result) error {
	messages := result.Messages
	if messages == nil {
		messages = []string{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode result messages: %w", err)
	}

	var entityID sql.NullInt64
	if result.EntityID != nil {
		entityID = sql.NullInt64{Int64: *result.EntityID, Valid: true}
	}

	query := `
		INSERT INTO job_results (job_id, entity_id, messages)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err = s.db.QueryRowxContext(ctx, query, result.JobID, entityID, string(raw)).
		Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job result: %w", err)
	}
	return nil
}

func (s *Postgres) GetResult(ctx context.Context, id int64) (*jobs.Result, error) {
	var row resultRow
	query := `SELECT id, job_id, entity_id, messages, created_at FROM job_results WHERE id = $1`

	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job result: %w", err)
	}
	return row.toResult()
}

func (s *Postgres) ListResults(ctx context.Context, jobID int64) ([]*jobs.Result, error) {
	var rows []resultRow
	query := `SELECT id, job_id, entity_id, messages, created_at FROM job_results WHERE job_id = $1 ORDER BY id`

	if err := s.db.SelectContext(ctx, &rows, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list job results: %w", err)
	}

	list := make([]*jobs.Result, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toResult()
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, nil
}

func (s *Postgres) CountResults(ctx context.Context, jobID int64, onlyErrors bool) (int, error) {
	query := `SELECT COUNT(*) FROM job_results WHERE job_id = $1`
	if onlyErrors {
		query += ` AND messages <> '[]'::jsonb`
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, jobID); err != nil {
		return 0, fmt.Errorf("failed to count job results: %w", err)
	}
	return count, nil
}
