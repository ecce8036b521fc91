package storage

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createMemoryJob(t *testing.T, s *Memory, owner jobs.Owner, status jobs.Status) *jobs.Job {
	t.Helper()

	job := &jobs.Job{
		TypeID:       "core-batch_process",
		Owner:        owner,
		Language:     "en",
		Status:       status,
		Enabled:      true,
		ReferenceRun: time.Now().UTC(),
	}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

func TestMemory_DeleteJobCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	job := createMemoryJob(t, s, jobs.UserOwner(1), jobs.StatusOK)
	other := createMemoryJob(t, s, jobs.UserOwner(1), jobs.StatusOK)

	result := &jobs.Result{JobID: job.ID, Messages: []string{"boom"}}
	require.NoError(t, s.CreateResult(ctx, result))
	kept := &jobs.Result{JobID: other.ID}
	require.NoError(t, s.CreateResult(ctx, kept))

	require.NoError(t, s.DeleteJob(ctx, job.ID))

	_, err := s.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	_, err = s.GetResult(ctx, result.ID)
	assert.ErrorIs(t, err, jobs.ErrNotFound)

	_, err = s.GetResult(ctx, kept.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, s.DeleteJob(ctx, job.ID), jobs.ErrNotFound)
}

func TestMemory_CountPending(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	createMemoryJob(t, s, jobs.UserOwner(1), jobs.StatusWait)
	createMemoryJob(t, s, jobs.UserOwner(1), jobs.StatusWait)
	createMemoryJob(t, s, jobs.UserOwner(1), jobs.StatusOK)
	createMemoryJob(t, s, jobs.UserOwner(2), jobs.StatusWait)
	createMemoryJob(t, s, jobs.SystemOwner(), jobs.StatusWait)

	count, err := s.CountPending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemory_DeleteFinishedUserJobs(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	finished := createMemoryJob(t, s, jobs.UserOwner(1), jobs.StatusError)
	waiting := createMemoryJob(t, s, jobs.UserOwner(1), jobs.StatusWait)
	system := createMemoryJob(t, s, jobs.SystemOwner(), jobs.StatusOK)
	require.NoError(t, s.CreateResult(ctx, &jobs.Result{JobID: finished.ID}))

	deleted, err := s.DeleteFinishedUserJobs(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.GetJob(ctx, finished.ID)
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	_, err = s.GetJob(ctx, waiting.ID)
	assert.NoError(t, err)
	_, err = s.GetJob(ctx, system.ID)
	assert.NoError(t, err)

	count, err := s.CountResults(ctx, finished.ID, false)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	job := createMemoryJob(t, s, jobs.SystemOwner(), jobs.StatusWait)

	loaded, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	loaded.Enabled = false

	again, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, again.Enabled)

	found, err := s.FindSystemJob(ctx, "core-batch_process")
	require.NoError(t, err)
	assert.Equal(t, job.ID, found.ID)

	_, err = s.FindSystemJob(ctx, "core-unknown")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestMemory_UpdateStatusKeepsLastRun(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	job := createMemoryJob(t, s, jobs.SystemOwner(), jobs.StatusWait)
	last := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpdateStatus(ctx, job.ID, jobs.StatusError, "boom", &last))
	require.NoError(t, s.UpdateStatus(ctx, job.ID, jobs.StatusWait, "", nil))

	loaded, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusWait, loaded.Status)
	assert.Empty(t, loaded.Error)
	require.NotNil(t, loaded.LastRun)
	assert.Equal(t, last, *loaded.LastRun)
}
