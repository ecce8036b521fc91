package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ManagerConfig holds the collaborators of a Manager
type ManagerConfig struct {
	Store          Store
	Queue          Queue
	Registry       *Registry
	Authorizer     Authorizer
	Logger         *slog.Logger
	MaxJobsPerUser int
	Now            func() time.Time
}

// Manager performs every mutation on jobs and keeps the scheduler informed through the queue
type Manager struct {
	store          Store
	queue          Queue
	registry       *Registry
	authorizer     Authorizer
	logger         *slog.Logger
	maxJobsPerUser int
	now            func() time.Time
}

// NewManager creates a new job manager
func NewManager(cfg *ManagerConfig) *Manager {
	m := &Manager{
		store:          cfg.Store,
		queue:          cfg.Queue,
		registry:       cfg.Registry,
		authorizer:     cfg.Authorizer,
		logger:         cfg.Logger,
		maxJobsPerUser: cfg.MaxJobsPerUser,
		now:            cfg.Now,
	}
	if m.authorizer == nil {
		m.authorizer = DefaultAuthorizer{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.maxJobsPerUser < 1 {
		m.maxJobsPerUser = 1
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// CreateParams describes a job to create
type CreateParams struct {
	TypeID   string
	Owner    Owner
	Language string
	Payload  map[string]any
}

// Outcome is the result of a schedule mutation.
// QueueError is set when the scheduler could not be notified; the mutation is persisted anyway.
type Outcome struct {
	Job        *Job
	Refreshed  bool
	QueueError string
}

// Type resolves the type of a job; ok is false for jobs whose type is no longer registered
func (m *Manager) Type(job *Job) (Type, bool) {
	return m.registry.Lookup(job.TypeID)
}

// Registry returns the job types known by the manager
func (m *Manager) Registry() *Registry {
	return m.registry
}

// RealPeriodicity resolves the effective period of a job
func (m *Manager) RealPeriodicity(job *Job) *Period {
	t, ok := m.Type(job)
	if !ok {
		return nil
	}
	return RealPeriodicity(job, t)
}

// Create persists a new waiting job and asks the scheduler to start it.
// A failed start is counted in the job's ack errors, not returned.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*Job, error) {
	t, ok := m.registry.Lookup(params.TypeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, params.TypeID)
	}

	data := t.DefaultData()
	for k, v := range params.Payload {
		data[k] = v
	}

	language := params.Language
	if language == "" {
		language = DefaultLanguage
	}

	job := &Job{
		TypeID:       t.ID(),
		Owner:        params.Owner,
		Language:     language,
		Status:       StatusWait,
		Enabled:      true,
		ReferenceRun: m.now().UTC(),
	}
	if t.Periodic() == Periodic {
		job.Periodicity = t.DefaultPeriod()
	}
	if err := job.SetData(data); err != nil {
		return nil, err
	}

	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	m.logger.Info("Job created",
		slog.Int64("job_id", job.ID),
		slog.String("type_id", job.TypeID),
		slog.String("owner", job.Owner.String()),
	)

	m.start(ctx, job)

	return job, nil
}

// CreateForUser creates a job owned by user, unless the user reached the pending jobs cap
func (m *Manager) CreateForUser(ctx context.Context, user User, params CreateParams) (*Job, error) {
	pending, err := m.CountPending(ctx, user)
	if err != nil {
		return nil, err
	}
	if pending >= m.maxJobsPerUser {
		return nil, fmt.Errorf("%w: %s", ErrTooManyJobs, MaxJobsMessage(m.maxJobsPerUser))
	}

	params.Owner = UserOwner(user.ID)
	return m.Create(ctx, params)
}

func (m *Manager) start(ctx context.Context, job *Job) {
	err := m.queue.StartJob(ctx, job)
	if err == nil {
		return
	}

	m.logger.Warn("Failed to send start command to job scheduler",
		slog.Int64("job_id", job.ID),
		slog.Any("error", err),
	)

	if err := m.store.IncrementAckErrors(ctx, job.ID); err != nil {
		m.logger.Error("Failed to increment ack errors",
			slog.Int64("job_id", job.ID),
			slog.Any("error", err),
		)
		return
	}
	job.AckErrors++
}

// EditRequest carries a schedule edit. Nil fields are left unchanged.
type EditRequest struct {
	ReferenceRun *time.Time
	Periodicity  *Period
	Data         map[string]json.RawMessage
}

// EditSchedule changes the schedule and type-specific data of a PERIODIC job.
// The scheduler is refreshed only when the reference run or the periodicity actually changed.
func (m *Manager) EditSchedule(ctx context.Context, job *Job, req EditRequest) (*Outcome, error) {
	t, ok := m.Type(job)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, job.TypeID)
	}
	if t.Periodic() != Periodic {
		return nil, fmt.Errorf("edit schedule of job %d: %w", job.ID, ErrNotPeriodic)
	}

	updated := job.Clone()

	referenceChanged := false
	if req.ReferenceRun != nil {
		if req.ReferenceRun.IsZero() {
			return nil, &ValidationError{Field: "reference_run", Message: "reference run is required"}
		}
		// Submitted datetimes have a one second resolution
		if !req.ReferenceRun.Truncate(time.Second).Equal(job.ReferenceRun.Truncate(time.Second)) {
			updated.ReferenceRun = req.ReferenceRun.UTC()
			referenceChanged = true
		}
	}

	periodicityChanged := false
	if req.Periodicity != nil {
		if err := req.Periodicity.Validate(); err != nil {
			return nil, err
		}
		if !req.Periodicity.Equal(job.Periodicity) {
			p := *req.Periodicity
			updated.Periodicity = &p
			periodicityChanged = true
		}
	}

	if req.Data != nil {
		cleaned, err := t.CleanData(req.Data)
		if err != nil {
			return nil, err
		}
		if cleaned != nil {
			data, err := updated.Data()
			if err != nil {
				return nil, err
			}
			for k, v := range cleaned {
				data[k] = v
			}
			if err := updated.SetData(data); err != nil {
				return nil, err
			}
		}
	}

	if err := m.store.UpdateSchedule(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update schedule of job %d: %w", job.ID, err)
	}

	outcome := &Outcome{Job: updated}
	if referenceChanged || periodicityChanged {
		outcome.Refreshed = true
		outcome.QueueError = m.refresh(ctx, updated, NewRefreshData(updated, periodicityChanged))
	}

	m.logger.Info("Job schedule edited",
		slog.Int64("job_id", job.ID),
		slog.Bool("reference_run_changed", referenceChanged),
		slog.Bool("periodicity_changed", periodicityChanged),
	)

	return outcome, nil
}

// Enable re-enables a system job
func (m *Manager) Enable(ctx context.Context, job *Job) (*Outcome, error) {
	return m.setEnabled(ctx, job, true)
}

// Disable disables a system job
func (m *Manager) Disable(ctx context.Context, job *Job) (*Outcome, error) {
	return m.setEnabled(ctx, job, false)
}

func (m *Manager) setEnabled(ctx context.Context, job *Job, enabled bool) (*Outcome, error) {
	if !job.IsSystem() {
		return nil, fmt.Errorf("job %d: %w", job.ID, ErrNotSystemJob)
	}

	if err := m.store.SetEnabled(ctx, job.ID, enabled); err != nil {
		return nil, fmt.Errorf("failed to set enabled flag of job %d: %w", job.ID, err)
	}

	updated := job.Clone()
	updated.Enabled = enabled

	m.logger.Info("Job enabled flag changed",
		slog.Int64("job_id", job.ID),
		slog.Bool("enabled", enabled),
	)

	return &Outcome{
		Job:        updated,
		Refreshed:  true,
		QueueError: m.refresh(ctx, updated, NewRefreshData(updated, false)),
	}, nil
}

func (m *Manager) refresh(ctx context.Context, job *Job, data RefreshData) string {
	if err := m.queue.RefreshJob(ctx, job, data); err != nil {
		m.logger.Warn("Failed to send refresh command to job scheduler",
			slog.Int64("job_id", job.ID),
			slog.Any("error", err),
		)
		return err.Error()
	}
	return ""
}

// Clear deletes a finished user job and all its results
func (m *Manager) Clear(ctx context.Context, job *Job) error {
	if job.IsSystem() {
		return fmt.Errorf("job %d: %w", job.ID, ErrSystemJob)
	}
	if !job.Status.IsFinished() {
		return fmt.Errorf("job %d: %w", job.ID, ErrNotFinished)
	}

	if err := m.store.DeleteJob(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to delete job %d: %w", job.ID, err)
	}

	m.logger.Info("Job cleared", slog.Int64("job_id", job.ID))
	return nil
}

// StatusSnapshot returns the pollable state of a job
func (m *Manager) StatusSnapshot(ctx context.Context, job *Job) (StatusPayload, error) {
	payload := StatusPayload{
		Status:    int(job.Status),
		AckErrors: job.AckErrors,
	}

	t, ok := m.Type(job)
	if !ok {
		return payload, nil
	}

	progress, err := t.Progress(ctx, job, m.store)
	if err != nil {
		return payload, fmt.Errorf("failed to compute progress of job %d: %w", job.ID, err)
	}
	payload.Progress = progress

	return payload, nil
}

// Stats returns human readable statistics of a job; empty for jobs with an invalid type
func (m *Manager) Stats(ctx context.Context, job *Job) ([]string, error) {
	t, ok := m.Type(job)
	if !ok {
		return []string{}, nil
	}

	stats, err := t.Stats(ctx, job, m.store)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats of job %d: %w", job.ID, err)
	}
	if stats == nil {
		stats = []string{}
	}
	return stats, nil
}

// CountPending counts the waiting jobs of a user
func (m *Manager) CountPending(ctx context.Context, user User) (int, error) {
	count, err := m.store.CountPending(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return count, nil
}

// MaxJobsMessage returns the warning shown to a user who cannot create more jobs, or ""
func (m *Manager) MaxJobsMessage(ctx context.Context, user User) (string, error) {
	pending, err := m.CountPending(ctx, user)
	if err != nil {
		return "", err
	}
	if pending >= m.maxJobsPerUser {
		return MaxJobsMessage(m.maxJobsPerUser), nil
	}
	return "", nil
}

// Get loads a job
func (m *Manager) Get(ctx context.Context, id int64) (*Job, error) {
	return m.store.GetJob(ctx, id)
}

// List loads jobs
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	return m.store.ListJobs(ctx, filter)
}

// Results loads the results of a job
func (m *Manager) Results(ctx context.Context, job *Job) ([]*Result, error) {
	return m.store.ListResults(ctx, job.ID)
}

// CheckView fails with ErrPermission when user may not see job
func (m *Manager) CheckView(user User, job *Job) error {
	if !m.authorizer.CanView(user, job) {
		return fmt.Errorf("job %d: %w", job.ID, ErrPermission)
	}
	return nil
}

// CheckEdit fails with ErrPermission when user may not change the schedule of job.
// System jobs are reserved to privileged users.
func (m *Manager) CheckEdit(user User, job *Job) error {
	if job.IsSystem() && !m.authorizer.IsPrivileged(user) {
		return fmt.Errorf("job %d: %w", job.ID, ErrPermission)
	}
	return m.CheckView(user, job)
}

// CheckClear fails with ErrPermission unless user owns job or is privileged
func (m *Manager) CheckClear(user User, job *Job) error {
	if job.Owner.Is(user.ID) || m.authorizer.IsPrivileged(user) {
		return nil
	}
	return fmt.Errorf("job %d: %w", job.ID, ErrPermission)
}

// CheckListAll fails with ErrPermission unless user is privileged
func (m *Manager) CheckListAll(user User) error {
	if !m.authorizer.IsPrivileged(user) {
		return fmt.Errorf("list all jobs: %w", ErrPermission)
	}
	return nil
}

// EnsureSystemJob returns the system job of a recurring type, creating it when missing
func (m *Manager) EnsureSystemJob(ctx context.Context, t Type) (*Job, bool, error) {
	job, err := m.store.FindSystemJob(ctx, t.ID())
	if err == nil {
		return job, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("failed to find system job %s: %w", t.ID(), err)
	}

	job = &Job{
		TypeID:       t.ID(),
		Owner:        SystemOwner(),
		Language:     DefaultLanguage,
		Status:       StatusWait,
		Enabled:      true,
		ReferenceRun: m.now().UTC(),
	}
	if t.Periodic() == Periodic {
		job.Periodicity = t.DefaultPeriod()
	}
	if err := job.SetData(t.DefaultData()); err != nil {
		return nil, false, err
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, false, fmt.Errorf("failed to create system job %s: %w", t.ID(), err)
	}

	m.logger.Info("System job created",
		slog.Int64("job_id", job.ID),
		slog.String("type_id", job.TypeID),
	)
	return job, true, nil
}

// MarkRunning resets the previous outcome of a job about to run
func (m *Manager) MarkRunning(ctx context.Context, job *Job) error {
	if err := m.store.UpdateStatus(ctx, job.ID, StatusWait, "", job.LastRun); err != nil {
		return fmt.Errorf("failed to mark job %d as running: %w", job.ID, err)
	}
	job.Status = StatusWait
	job.Error = ""
	return nil
}

// MarkFinished records the outcome of a run. A nil runErr means success.
func (m *Manager) MarkFinished(ctx context.Context, job *Job, runErr error) error {
	if runErr != nil {
		return m.finish(ctx, job, StatusError, runErr.Error())
	}
	return m.finish(ctx, job, StatusOK, "")
}

// MarkFailed records a run which failed with message
func (m *Manager) MarkFailed(ctx context.Context, job *Job, message string) error {
	return m.finish(ctx, job, StatusError, message)
}

func (m *Manager) finish(ctx context.Context, job *Job, status Status, message string) error {
	lastRun := m.now().UTC()
	if err := m.store.UpdateStatus(ctx, job.ID, status, message, &lastRun); err != nil {
		return fmt.Errorf("failed to mark job %d as finished: %w", job.ID, err)
	}

	job.Status = status
	job.Error = message
	job.LastRun = &lastRun
	return nil
}

// ForgetAckErrors resets the ack errors once the scheduler received a job
func (m *Manager) ForgetAckErrors(ctx context.Context, job *Job) error {
	if job.AckErrors == 0 {
		return nil
	}
	if err := m.store.ResetAckErrors(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to reset ack errors of job %d: %w", job.ID, err)
	}
	job.AckErrors = 0
	return nil
}

// AddResult records one processed item of a job
func (m *Manager) AddResult(ctx context.Context, result *Result) error {
	if err := m.store.CreateResult(ctx, result); err != nil {
		return fmt.Errorf("failed to add result to job %d: %w", result.JobID, err)
	}
	return nil
}

// Now returns the manager's clock reading
func (m *Manager) Now() time.Time {
	return m.now()
}
