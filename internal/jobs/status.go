package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

const (
	// InvalidJobIDMessage is polled for ids matching no job
	InvalidJobIDMessage = "Invalid job ID"
	// JobNotAllowedMessage is polled for jobs the requester may not see
	JobNotAllowedMessage = "Job is not allowed"
)

// PollResult is the answer to a status poll.
// When Error is set the whole answer is that error and Jobs is nil.
type PollResult struct {
	Error string
	// Jobs maps decimal job ids onto a StatusPayload or a message
	Jobs map[string]any
}

// Body returns the JSON document sent to clients
func (r *PollResult) Body() any {
	if r.Error != "" {
		return map[string]string{"error": r.Error}
	}
	return r.Jobs
}

// PollStatus resolves raw job ids into status payloads.
// Ids which are not integers are ignored.
func (m *Manager) PollStatus(ctx context.Context, rawIDs []string, requester User) (*PollResult, error) {
	if msg := m.ping(ctx); msg != "" {
		return &PollResult{Error: msg}, nil
	}

	result := &PollResult{Jobs: make(map[string]any, len(rawIDs))}
	for _, raw := range rawIDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		key := strconv.FormatInt(id, 10)
		if _, done := result.Jobs[key]; done {
			continue
		}

		job, err := m.store.GetJob(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				result.Jobs[key] = InvalidJobIDMessage
				continue
			}
			return nil, fmt.Errorf("failed to poll job %d: %w", id, err)
		}

		if !m.authorizer.CanView(requester, job) {
			result.Jobs[key] = JobNotAllowedMessage
			continue
		}

		payload, err := m.StatusSnapshot(ctx, job)
		if err != nil {
			return nil, err
		}
		result.Jobs[key] = payload
	}

	return result, nil
}

func (m *Manager) ping(ctx context.Context) string {
	msg, err := m.queue.Ping(ctx)
	if err != nil {
		m.logger.Warn("Job scheduler ping failed", slog.Any("error", err))
		return err.Error()
	}
	return msg
}

// Ping returns "" when the job scheduler is alive, else a message explaining why not
func (m *Manager) Ping(ctx context.Context) string {
	return m.ping(ctx)
}
