package queue

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis connects to REDIS_ADDR; every test gets its own keys
func newTestRedis(t *testing.T) (*Redis, *goredis.Client) {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis queue tests")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "test:" + uuid.NewString()
	q := NewRedis(&RedisConfig{
		Client:       client,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		CommandsKey:  prefix + ":commands",
		HeartbeatKey: prefix + ":heartbeat",
		HeartbeatTTL: time.Minute,
		PollTimeout:  100 * time.Millisecond,
	})

	t.Cleanup(func() {
		client.Del(context.Background(), q.commandsKey, q.processingKey, q.heartbeatKey)
		client.Close()
	})
	return q, client
}

func receive(t *testing.T, deliveries <-chan *Delivery) *Delivery {
	t.Helper()

	select {
	case d := <-deliveries:
		require.NotNil(t, d)
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no command received")
		return nil
	}
}

func TestRedis_Ping(t *testing.T) {
	q, _ := newTestRedis(t)
	ctx := context.Background()

	msg, err := q.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, NotRespondingMessage, msg)

	require.NoError(t, q.Beat(ctx, "scheduler-1"))

	msg, err = q.Ping(ctx)
	require.NoError(t, err)
	assert.Empty(t, msg)
}

func TestRedis_CommandsInCallOrder(t *testing.T) {
	q, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := &jobs.Job{ID: 5, Enabled: true, ReferenceRun: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	require.NoError(t, q.StartJob(ctx, job))
	require.NoError(t, q.RefreshJob(ctx, job, jobs.NewRefreshData(job, false)))

	deliveries, err := q.Commands(ctx)
	require.NoError(t, err)

	first := receive(t, deliveries)
	assert.Equal(t, CommandStart, first.Command.Type)
	assert.Equal(t, int64(5), first.Command.JobID)
	require.NoError(t, first.Ack())

	second := receive(t, deliveries)
	assert.Equal(t, CommandRefresh, second.Command.Type)
	require.NotNil(t, second.Command.Data)
	assert.Equal(t, "2024-01-02T03:04:05.000000Z", second.Command.Data.ReferenceRun)
	require.NoError(t, second.Ack())

	pending, err := client.LLen(ctx, q.processingKey).Result()
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRedis_NackRequeues(t *testing.T) {
	q, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.StartJob(ctx, &jobs.Job{ID: 9}))

	deliveries, err := q.Commands(ctx)
	require.NoError(t, err)

	d := receive(t, deliveries)
	require.NoError(t, d.Nack(true))

	again := receive(t, deliveries)
	assert.Equal(t, d.Command.ID, again.Command.ID)
	require.NoError(t, again.Nack(false))

	remaining, err := client.LLen(ctx, q.commandsKey).Result()
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestRedis_RequeueStale(t *testing.T) {
	q, client := newTestRedis(t)
	ctx := context.Background()

	first, err := Encode(NewStartCommand(&jobs.Job{ID: 1}))
	require.NoError(t, err)
	second, err := Encode(NewStartCommand(&jobs.Job{ID: 2}))
	require.NoError(t, err)
	require.NoError(t, client.LPush(ctx, q.processingKey, first, second).Err())

	moved, err := q.RequeueStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	claimed, err := client.RPop(ctx, q.commandsKey).Result()
	require.NoError(t, err)
	assert.Equal(t, string(first), claimed)
}

func TestRedis_DropsMalformedCommands(t *testing.T) {
	q, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, client.LPush(ctx, q.commandsKey, "not json").Err())
	require.NoError(t, q.StartJob(ctx, &jobs.Job{ID: 3}))

	deliveries, err := q.Commands(ctx)
	require.NoError(t, err)

	d := receive(t, deliveries)
	assert.Equal(t, int64(3), d.Command.JobID)
	require.NoError(t, d.Ack())

	pending, err := client.LLen(ctx, q.processingKey).Result()
	require.NoError(t, err)
	assert.Zero(t, pending)
}
