// Package queue carries commands from the web tier to the job scheduler process.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/google/uuid"
)

const (
	// CommandStart asks the scheduler to run a job now
	CommandStart = "start"
	// CommandRefresh tells the scheduler that the schedule of a job changed
	CommandRefresh = "refresh"
)

// NotRespondingMessage is returned by Ping when no scheduler is listening
const NotRespondingMessage = "The job scheduler does not respond. Please contact your administrator."

// ContentType of encoded commands
const ContentType = "application/json"

// Command is the wire format of a queue message
type Command struct {
	ID     string            `json:"id"`
	Type   string            `json:"command"`
	JobID  int64             `json:"job_id"`
	Data   *jobs.RefreshData `json:"data,omitempty"`
	SentAt time.Time         `json:"sent_at"`
}

// NewStartCommand builds a start command for job
func NewStartCommand(job *jobs.Job) Command {
	return Command{
		ID:     uuid.NewString(),
		Type:   CommandStart,
		JobID:  job.ID,
		SentAt: time.Now().UTC(),
	}
}

// NewRefreshCommand builds a refresh command carrying the new schedule of job
func NewRefreshCommand(job *jobs.Job, data jobs.RefreshData) Command {
	return Command{
		ID:     uuid.NewString(),
		Type:   CommandRefresh,
		JobID:  job.ID,
		Data:   &data,
		SentAt: time.Now().UTC(),
	}
}

// Encode serializes a command
func Encode(cmd Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	return body, nil
}

// Decode parses and validates a command
func Decode(body []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return nil, fmt.Errorf("failed to decode command: %w", err)
	}

	switch cmd.Type {
	case CommandStart:
	case CommandRefresh:
		if cmd.Data == nil {
			return nil, fmt.Errorf("refresh command %s has no data", cmd.ID)
		}
	default:
		return nil, fmt.Errorf("unknown command %q", cmd.Type)
	}

	if cmd.JobID <= 0 {
		return nil, fmt.Errorf("command %s has an invalid job id %d", cmd.ID, cmd.JobID)
	}

	return &cmd, nil
}

// Delivery is a received command. It must be acknowledged once handled.
type Delivery struct {
	Command Command
	ack     func() error
	nack    func(requeue bool) error
}

// Ack marks the command as handled
func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack rejects the command, putting it back in the queue when requeue is true
func (d *Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Consumer is the scheduler side of a queue
type Consumer interface {
	Commands(ctx context.Context) (<-chan *Delivery, error)
}
