package queue

import (
	"context"
	"sync"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
)

// RefreshedJob is one refresh recorded by Memory
type RefreshedJob struct {
	Job  *jobs.Job
	Data jobs.RefreshData
}

// Memory is an in-process queue. It records what was sent, which makes it the queue of tests,
// and forwards commands to an in-process scheduler once Commands has been called.
type Memory struct {
	mu          sync.Mutex
	refreshed   []RefreshedJob
	started     []int64
	pingMessage string
	pingErr     error
	startErr    error
	refreshErr  error
	out         chan *Delivery
}

// NewMemory creates an in-memory queue
func NewMemory() *Memory {
	return &Memory{}
}

// SetPingMessage makes Ping report msg
func (q *Memory) SetPingMessage(msg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pingMessage = msg
}

// SetPingError makes Ping fail
func (q *Memory) SetPingError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pingErr = err
}

// SetStartError makes StartJob fail
func (q *Memory) SetStartError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.startErr = err
}

// SetRefreshError makes RefreshJob fail
func (q *Memory) SetRefreshError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refreshErr = err
}

// RefreshedJobs returns the refreshes sent since the last Clear
func (q *Memory) RefreshedJobs() []RefreshedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]RefreshedJob{}, q.refreshed...)
}

// StartedJobs returns the ids of the jobs started since the last Clear
func (q *Memory) StartedJobs() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int64{}, q.started...)
}

// Clear forgets the recorded commands
func (q *Memory) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refreshed = nil
	q.started = nil
}

func (q *Memory) Ping(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pingErr != nil {
		return "", jobs.NewQueueTransportError("ping", q.pingErr)
	}
	return q.pingMessage, nil
}

func (q *Memory) StartJob(ctx context.Context, job *jobs.Job) error {
	q.mu.Lock()
	if q.startErr != nil {
		err := q.startErr
		q.mu.Unlock()
		return jobs.NewQueueTransportError("start", err)
	}
	q.started = append(q.started, job.ID)
	out := q.out
	q.mu.Unlock()

	return forward(ctx, out, NewStartCommand(job))
}

func (q *Memory) RefreshJob(ctx context.Context, job *jobs.Job, data jobs.RefreshData) error {
	q.mu.Lock()
	if q.refreshErr != nil {
		err := q.refreshErr
		q.mu.Unlock()
		return jobs.NewQueueTransportError("refresh", err)
	}
	q.refreshed = append(q.refreshed, RefreshedJob{Job: job.Clone(), Data: data})
	out := q.out
	q.mu.Unlock()

	return forward(ctx, out, NewRefreshCommand(job, data))
}

func forward(ctx context.Context, out chan *Delivery, cmd Command) error {
	if out == nil {
		return nil
	}

	select {
	case out <- &Delivery{Command: cmd}:
		return nil
	case <-ctx.Done():
		return jobs.NewQueueTransportError(cmd.Type, ctx.Err())
	}
}

// Commands starts forwarding commands to the returned channel
func (q *Memory) Commands(ctx context.Context) (<-chan *Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.out == nil {
		q.out = make(chan *Delivery, 256)
	}
	return q.out, nil
}
