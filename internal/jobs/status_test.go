package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/cuongbtq/jobscheduler/internal/jobtypes"
	"github.com/cuongbtq/jobscheduler/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollStatus(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	user := jobs.User{ID: 1}
	jobA := f.createJob(t, jobs.UserOwner(user.ID), jobtypes.BatchProcessTypeID, jobs.StatusWait)
	jobB := f.createJob(t, jobs.UserOwner(user.ID), jobtypes.BatchProcessTypeID, jobs.StatusOK)
	jobC := f.createJob(t, jobs.UserOwner(2), jobtypes.BatchProcessTypeID, jobs.StatusWait)
	unknown := jobC.ID + 100

	idA := strconv.FormatInt(jobA.ID, 10)
	idB := strconv.FormatInt(jobB.ID, 10)
	idC := strconv.FormatInt(jobC.ID, 10)
	idUnknown := strconv.FormatInt(unknown, 10)

	result, err := f.manager.PollStatus(ctx, []string{idA, idB, idC, idUnknown, "notint", idA}, user)
	require.NoError(t, err)
	require.Empty(t, result.Error)

	raw, err := json.Marshal(result.Body())
	require.NoError(t, err)

	label := "0 entities have been processed."
	want := map[string]any{
		idA: map[string]any{
			"status":     float64(jobs.StatusWait),
			"ack_errors": float64(0),
			"progress":   map[string]any{"label": label, "percentage": nil},
		},
		idB: map[string]any{
			"status":     float64(jobs.StatusOK),
			"ack_errors": float64(0),
			"progress":   map[string]any{"label": label, "percentage": nil},
		},
		idC:       jobs.JobNotAllowedMessage,
		idUnknown: jobs.InvalidJobIDMessage,
	}

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, want, got)
}

func TestPollStatus_Superuser(t *testing.T) {
	f := newFixture(t, 1)

	job := f.createJob(t, jobs.UserOwner(1), jobtypes.BatchProcessTypeID, jobs.StatusError)
	id := strconv.FormatInt(job.ID, 10)

	result, err := f.manager.PollStatus(context.Background(), []string{id}, jobs.User{ID: 9, Superuser: true})
	require.NoError(t, err)
	require.Contains(t, result.Jobs, id)

	payload, ok := result.Jobs[id].(jobs.StatusPayload)
	require.True(t, ok)
	assert.Equal(t, int(jobs.StatusError), payload.Status)
}

func TestPollStatus_AckErrorsAreReported(t *testing.T) {
	f := newFixture(t, 1)
	f.queue.SetStartError(errors.New("connection refused"))

	job := f.createJob(t, jobs.UserOwner(1), jobtypes.BatchProcessTypeID, jobs.StatusWait)
	id := strconv.FormatInt(job.ID, 10)

	result, err := f.manager.PollStatus(context.Background(), []string{id}, jobs.User{ID: 1})
	require.NoError(t, err)

	payload, ok := result.Jobs[id].(jobs.StatusPayload)
	require.True(t, ok)
	assert.Equal(t, 1, payload.AckErrors)
}

func TestPollStatus_EmptyRequest(t *testing.T) {
	f := newFixture(t, 1)

	result, err := f.manager.PollStatus(context.Background(), nil, jobs.User{ID: 1})
	require.NoError(t, err)

	raw, err := json.Marshal(result.Body())
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestPollStatus_SchedulerUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(q *queue.Memory)
		wantErr string
	}{
		{
			name:    "no consumer",
			setup:   func(q *queue.Memory) { q.SetPingMessage(queue.NotRespondingMessage) },
			wantErr: queue.NotRespondingMessage,
		},
		{
			name:    "transport failure",
			setup:   func(q *queue.Memory) { q.SetPingError(errors.New("dial tcp: connection refused")) },
			wantErr: "job scheduler queue ping failed: dial tcp: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1)
			job := f.createJob(t, jobs.UserOwner(1), jobtypes.BatchProcessTypeID, jobs.StatusWait)
			tt.setup(f.queue)

			result, err := f.manager.PollStatus(context.Background(), []string{strconv.FormatInt(job.ID, 10)}, jobs.User{ID: 1})
			require.NoError(t, err)
			assert.Equal(t, tt.wantErr, result.Error)
			assert.Nil(t, result.Jobs)
			assert.Equal(t, map[string]string{"error": tt.wantErr}, result.Body())
			assert.Equal(t, tt.wantErr, f.manager.Ping(context.Background()))
		})
	}
}
