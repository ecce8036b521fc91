package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RecordsRefreshes(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	job := &jobs.Job{ID: 1, Enabled: true, ReferenceRun: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	require.NoError(t, q.RefreshJob(ctx, job, jobs.NewRefreshData(job, false)))

	refreshed := q.RefreshedJobs()
	require.Len(t, refreshed, 1)
	assert.Equal(t, int64(1), refreshed[0].Job.ID)
	assert.Equal(t, map[string]any{
		"enabled":       true,
		"reference_run": "2024-01-02T03:04:05.000000Z",
	}, refreshed[0].Data.AsDict())

	q.Clear()
	assert.Empty(t, q.RefreshedJobs())
}

func TestMemory_PingIsStable(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg, err := q.Ping(ctx)
		require.NoError(t, err)
		assert.Empty(t, msg)
	}

	q.SetPingMessage("Arggggg")
	for i := 0; i < 3; i++ {
		msg, err := q.Ping(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Arggggg", msg)
	}
}

func TestMemory_StartError(t *testing.T) {
	q := NewMemory()
	q.SetStartError(errors.New("down"))

	err := q.StartJob(context.Background(), &jobs.Job{ID: 3})
	var transportErr *jobs.QueueTransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Empty(t, q.StartedJobs())
}

func TestMemory_ForwardsToConsumer(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	job := &jobs.Job{ID: 3}
	require.NoError(t, q.StartJob(ctx, job))

	out, err := q.Commands(ctx)
	require.NoError(t, err)

	require.NoError(t, q.StartJob(ctx, job))

	select {
	case d := <-out:
		assert.Equal(t, CommandStart, d.Command.Type)
		assert.NoError(t, d.Ack())
	case <-time.After(time.Second):
		t.Fatal("command not forwarded")
	}

	assert.Equal(t, []int64{3, 3}, q.StartedJobs())
	assert.Len(t, out, 0)
}
