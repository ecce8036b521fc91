// Package scheduler runs jobs: it consumes the commands sent by the web tier,
// keeps a timetable of the recurring system jobs and executes jobs in a worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/cuongbtq/jobscheduler/internal/queue"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Heartbeater advertises that a scheduler is alive
type Heartbeater interface {
	Beat(ctx context.Context, instanceID string) error
}

// StaleRequeuer gives back the commands claimed by a scheduler which died before acknowledging them
type StaleRequeuer interface {
	RequeueStale(ctx context.Context) (int64, error)
}

// Config holds scheduler configuration
type Config struct {
	Logger            *slog.Logger
	Manager           *jobs.Manager
	Consumer          queue.Consumer
	Heartbeat         Heartbeater
	Concurrency       int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	InstanceID        string
}

// Scheduler represents the job scheduler process
type Scheduler struct {
	logger            *slog.Logger
	manager           *jobs.Manager
	consumer          queue.Consumer
	heartbeat         Heartbeater
	concurrency       int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	instanceID        string

	cron *cron.Cron

	mu sync.Mutex
	// timetable holds the recurring jobs, as last known by the scheduler
	timetable map[int64]*jobs.Job
	entries   map[int64]cron.EntryID
	// busy holds the jobs queued or running in the pool
	busy map[int64]bool

	jobsChan chan *jobs.Job
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg *Config) *Scheduler {
	s := &Scheduler{
		logger:            cfg.Logger,
		manager:           cfg.Manager,
		consumer:          cfg.Consumer,
		heartbeat:         cfg.Heartbeat,
		concurrency:       cfg.Concurrency,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
		instanceID:        cfg.InstanceID,
		timetable:         make(map[int64]*jobs.Job),
		entries:           make(map[int64]cron.EntryID),
		busy:              make(map[int64]bool),
		stopChan:          make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = time.Hour
	}
	if s.heartbeatInterval <= 0 {
		s.heartbeatInterval = 10 * time.Second
	}
	if s.instanceID == "" {
		s.instanceID = uuid.NewString()
	}

	s.jobsChan = make(chan *jobs.Job, s.concurrency*4)
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(NewCronLogger(s.logger)),
	)
	return s
}

// Start loads the timetable, then processes commands until ctx is canceled
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting job scheduler",
		slog.String("instance_id", s.instanceID),
		slog.Int("concurrency", s.concurrency),
		slog.Duration("job_timeout", s.jobTimeout),
	)

	waiting, err := s.bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("failed to bootstrap scheduler: %w", err)
	}

	s.spawnWorkerPool(ctx)
	s.cron.Start()

	if s.heartbeat != nil {
		s.wg.Add(1)
		go s.heartbeatLoop(ctx)
	}

	// The pool must be running, there may be more waiting jobs than jobsChan holds
	for _, job := range waiting {
		s.logger.Info("Dispatching waiting job", slog.Int64("job_id", job.ID))
		s.startJob(ctx, job)
	}

	commands, err := s.consumer.Commands(ctx)
	if err != nil {
		return fmt.Errorf("failed to consume commands: %w", err)
	}

	s.dispatchCommands(ctx, commands)
	return nil
}

// Stop waits for the running jobs and releases the timetable
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping job scheduler...")
		close(s.stopChan)
		<-s.cron.Stop().Done()
		s.wg.Wait()
		s.logger.Info("Job scheduler stopped")
	})
}

// bootstrap creates the missing system jobs, fills the timetable
// and gives back the commands lost while no scheduler was running.
// It returns the one-shot jobs still waiting to run.
func (s *Scheduler) bootstrap(ctx context.Context) ([]*jobs.Job, error) {
	if requeuer, ok := s.consumer.(StaleRequeuer); ok {
		moved, err := requeuer.RequeueStale(ctx)
		if err != nil {
			return nil, err
		}
		if moved > 0 {
			s.logger.Info("Requeued stale commands", slog.Int64("count", moved))
		}
	}

	for _, t := range s.manager.Registry().All() {
		if t.Periodic() == jobs.NotPeriodic {
			continue
		}

		job, created, err := s.manager.EnsureSystemJob(ctx, t)
		if err != nil {
			return nil, err
		}
		if created {
			s.logger.Info("Created system job",
				slog.Int64("job_id", job.ID),
				slog.String("type_id", t.ID()),
			)
		}
		s.schedule(job)
	}

	wait := jobs.StatusWait
	waiting, err := s.manager.List(ctx, jobs.ListFilter{Status: &wait})
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting jobs: %w", err)
	}

	lost := make([]*jobs.Job, 0, len(waiting))
	for _, job := range waiting {
		t, ok := s.manager.Type(job)
		if ok && t.Periodic() != jobs.NotPeriodic {
			continue
		}
		lost = append(lost, job)
	}
	return lost, nil
}

// schedule puts a recurring job in the timetable, or takes it out when it is disabled
func (s *Scheduler) schedule(job *jobs.Job) {
	s.mu.Lock()
	s.timetable[job.ID] = job.Clone()
	previous, scheduled := s.entries[job.ID]
	delete(s.entries, job.ID)
	s.mu.Unlock()

	// cron calls wakeupSchedule.Next with its own lock held, never hold s.mu here
	if scheduled {
		s.cron.Remove(previous)
	}

	if !job.Enabled {
		s.logger.Info("Job removed from timetable", slog.Int64("job_id", job.ID))
		return
	}

	id := s.cron.Schedule(&wakeupSchedule{scheduler: s, jobID: job.ID}, cron.FuncJob(func() {
		s.wakeUp(job.ID)
	}))

	s.mu.Lock()
	s.entries[job.ID] = id
	s.mu.Unlock()

	s.logger.Info("Job scheduled",
		slog.Int64("job_id", job.ID),
		slog.String("reference_run", jobs.FormatISO8601(job.ReferenceRun)),
		slog.String("periodicity", s.manager.RealPeriodicity(job).String()),
	)
}

// scheduled returns a copy of a job of the timetable
func (s *Scheduler) scheduled(jobID int64) (*jobs.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.timetable[jobID]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// NextWakeup returns when a job of the timetable runs next; ok is false for unscheduled jobs
func (s *Scheduler) NextWakeup(jobID int64) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[jobID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return time.Time{}, false
	}
	if !entry.Next.IsZero() {
		return entry.Next, true
	}

	// Not started yet
	job, ok := s.scheduled(jobID)
	if !ok {
		return time.Time{}, false
	}
	return (&wakeupSchedule{scheduler: s, jobID: job.ID}).Next(s.manager.Now()), true
}

// wakeUp runs a job of the timetable
func (s *Scheduler) wakeUp(jobID int64) {
	job, ok := s.scheduled(jobID)
	if !ok || !job.Enabled {
		return
	}
	s.enqueue(context.Background(), job)
}

// enqueue hands a job to the worker pool unless it is already queued or running
func (s *Scheduler) enqueue(ctx context.Context, job *jobs.Job) bool {
	s.mu.Lock()
	if s.busy[job.ID] {
		s.mu.Unlock()
		s.logger.Warn("Job is already running, skipping", slog.Int64("job_id", job.ID))
		return false
	}
	s.busy[job.ID] = true
	s.mu.Unlock()

	select {
	case s.jobsChan <- job:
		s.logger.Debug("Job dispatched to worker pool", slog.Int64("job_id", job.ID))
		return true
	case <-s.stopChan:
		s.release(job.ID)
		return false
	case <-ctx.Done():
		s.release(job.ID)
		return false
	}
}

func (s *Scheduler) release(jobID int64) {
	s.mu.Lock()
	delete(s.busy, jobID)
	s.mu.Unlock()
}

// finished updates the timetable copy of a recurring job after a run
func (s *Scheduler) finished(job *jobs.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.busy, job.ID)
	if cached, ok := s.timetable[job.ID]; ok {
		cached.Status = job.Status
		cached.Error = job.Error
		cached.LastRun = job.LastRun
	}
}

func (s *Scheduler) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	beat := func() {
		if err := s.heartbeat.Beat(ctx, s.instanceID); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Failed to send scheduler heartbeat", slog.Any("error", err))
		}
	}

	beat()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}

// wakeupSchedule adapts the next wakeup of a job type to a cron schedule
type wakeupSchedule struct {
	scheduler *Scheduler
	jobID     int64
}

// Next returns the zero time, which cron never fires, for jobs which left the timetable
func (w *wakeupSchedule) Next(t time.Time) time.Time {
	job, ok := w.scheduler.scheduled(w.jobID)
	if !ok || !job.Enabled {
		return time.Time{}
	}

	typ, ok := w.scheduler.manager.Type(job)
	if !ok {
		return time.Time{}
	}

	next, err := typ.NextWakeup(job, t)
	if err != nil {
		w.scheduler.logger.Error("Failed to compute next wakeup",
			slog.Int64("job_id", job.ID),
			slog.Any("error", err),
		)
		return time.Time{}
	}
	return next
}
