package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
)

// Memory is an in-process job store with the same semantics as Postgres
type Memory struct {
	mu         sync.Mutex
	jobs       map[int64]*jobs.Job
	results    map[int64]*jobs.Result
	nextJobID  int64
	nextResult int64
	now        func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		jobs:    make(map[int64]*jobs.Job),
		results: make(map[int64]*jobs.Result),
		now:     time.Now,
	}
}

func (s *Memory) CreateJob(ctx context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextJobID++
	job.ID = s.nextJobID
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Memory) GetJob(ctx context.Context, id int64) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *Memory) ListJobs(ctx context.Context, filter jobs.ListFilter) ([]*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*jobs.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.UserID != nil && !job.Owner.Is(*filter.UserID) {
			continue
		}
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		if filter.TypeID != "" && job.TypeID != filter.TypeID {
			continue
		}
		if job.ID <= filter.AfterID {
			continue
		}
		list = append(list, job.Clone())
	}

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if filter.Limit > 0 && len(list) > filter.Limit {
		list = list[:filter.Limit]
	}
	return list, nil
}

func (s *Memory) FindSystemJob(ctx context.Context, typeID string) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *jobs.Job
	for _, job := range s.jobs {
		if job.TypeID != typeID || !job.IsSystem() {
			continue
		}
		if found == nil || job.ID < found.ID {
			found = job
		}
	}
	if found == nil {
		return nil, jobs.ErrNotFound
	}
	return found.Clone(), nil
}

func (s *Memory) UpdateSchedule(ctx context.Context, job *jobs.Job) error {
	return s.update(job.ID, func(stored *jobs.Job) {
		c := job.Clone()
		stored.ReferenceRun = c.ReferenceRun
		stored.Periodicity = c.Periodicity
		stored.RawData = c.RawData
	})
}

func (s *Memory) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.update(id, func(stored *jobs.Job) {
		stored.Enabled = enabled
	})
}

func (s *Memory) IncrementAckErrors(ctx context.Context, id int64) error {
	return s.update(id, func(stored *jobs.Job) {
		stored.AckErrors++
	})
}

func (s *Memory) ResetAckErrors(ctx context.Context, id int64) error {
	return s.update(id, func(stored *jobs.Job) {
		stored.AckErrors = 0
	})
}

func (s *Memory) UpdateStatus(ctx context.Context, id int64, status jobs.Status, errMsg string, lastRun *time.Time) error {
	return s.update(id, func(stored *jobs.Job) {
		stored.Status = status
		stored.Error = errMsg
		if lastRun != nil {
			t := *lastRun
			stored.LastRun = &t
		}
	})
}

func (s *Memory) update(id int64, fn func(stored *jobs.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[id]
	if !ok {
		return jobs.ErrNotFound
	}
	fn(stored)
	return nil
}

func (s *Memory) DeleteJob(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return jobs.ErrNotFound
	}
	s.deleteLocked(id)
	return nil
}

func (s *Memory) deleteLocked(id int64) {
	for rid, r := range s.results {
		if r.JobID == id {
			delete(s.results, rid)
		}
	}
	delete(s.jobs, id)
}

func (s *Memory) DeleteFinishedUserJobs(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, job := range s.jobs {
		if job.IsSystem() || !job.Status.IsFinished() || !job.CreatedAt.Before(before) {
			continue
		}
		s.deleteLocked(id)
		deleted++
	}
	return deleted, nil
}

func (s *Memory) CountPending(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, job := range s.jobs {
		if job.Status == jobs.StatusWait && job.Owner.Is(userID) {
			count++
		}
	}
	return count, nil
}

func (s *Memory) CreateResult(ctx context.Context, result *jobs.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[result.JobID]; !ok {
		return jobs.ErrNotFound
	}

	s.nextResult++
	result.ID = s.nextResult
	if result.CreatedAt.IsZero() {
		result.CreatedAt = s.now().UTC()
	}
	c := *result
	c.Messages = append([]string(nil), result.Messages...)
	s.results[c.ID] = &c
	return nil
}

func (s *Memory) GetResult(ctx context.Context, id int64) (*jobs.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (s *Memory) ListResults(ctx context.Context, jobID int64) ([]*jobs.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*jobs.Result, 0)
	for _, r := range s.results {
		if r.JobID == jobID {
			c := *r
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *Memory) CountResults(ctx context.Context, jobID int64, onlyErrors bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, r := range s.results {
		if r.JobID != jobID {
			continue
		}
		if onlyErrors && !r.IsError() {
			continue
		}
		count++
	}
	return count, nil
}
