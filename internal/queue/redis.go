package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	goredis "github.com/redis/go-redis/v9"
)

// RedisConfig holds the keys and timings of a Redis backed queue
type RedisConfig struct {
	Client        goredis.UniversalClient
	Logger        *slog.Logger
	CommandsKey   string
	ProcessingKey string
	HeartbeatKey  string
	HeartbeatTTL  time.Duration
	PollTimeout   time.Duration
}

// Redis sends commands through a Redis list.
// Claimed commands sit in a processing list until acknowledged, so a crashed
// scheduler can requeue them on restart. The scheduler proves it is alive by
// refreshing a heartbeat key.
type Redis struct {
	rdb           goredis.UniversalClient
	logger        *slog.Logger
	commandsKey   string
	processingKey string
	heartbeatKey  string
	heartbeatTTL  time.Duration
	pollTimeout   time.Duration
}

// NewRedis creates a Redis backed queue
func NewRedis(cfg *RedisConfig) *Redis {
	q := &Redis{
		rdb:           cfg.Client,
		logger:        cfg.Logger,
		commandsKey:   cfg.CommandsKey,
		processingKey: cfg.ProcessingKey,
		heartbeatKey:  cfg.HeartbeatKey,
		heartbeatTTL:  cfg.HeartbeatTTL,
		pollTimeout:   cfg.PollTimeout,
	}
	if q.processingKey == "" {
		q.processingKey = q.commandsKey + ":processing"
	}
	if q.pollTimeout <= 0 {
		q.pollTimeout = time.Second
	}
	return q
}

func (q *Redis) Ping(ctx context.Context) (string, error) {
	n, err := q.rdb.Exists(ctx, q.heartbeatKey).Result()
	if err != nil {
		return "", jobs.NewQueueTransportError("ping", err)
	}
	if n == 0 {
		return NotRespondingMessage, nil
	}
	return "", nil
}

func (q *Redis) StartJob(ctx context.Context, job *jobs.Job) error {
	if err := q.push(ctx, NewStartCommand(job)); err != nil {
		return jobs.NewQueueTransportError("start", err)
	}
	return nil
}

func (q *Redis) RefreshJob(ctx context.Context, job *jobs.Job, data jobs.RefreshData) error {
	if err := q.push(ctx, NewRefreshCommand(job, data)); err != nil {
		return jobs.NewQueueTransportError("refresh", err)
	}
	return nil
}

func (q *Redis) push(ctx context.Context, cmd Command) error {
	body, err := Encode(cmd)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.commandsKey, body).Err()
}

// Beat refreshes the heartbeat key read by Ping
func (q *Redis) Beat(ctx context.Context, instanceID string) error {
	if err := q.rdb.Set(ctx, q.heartbeatKey, instanceID, q.heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh heartbeat: %w", err)
	}
	return nil
}

// RequeueStale moves back the commands claimed by a previous scheduler run, oldest first
func (q *Redis) RequeueStale(ctx context.Context) (int64, error) {
	var moved int64
	for {
		_, err := q.rdb.LMove(ctx, q.processingKey, q.commandsKey, "LEFT", "RIGHT").Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return moved, nil
			}
			return moved, fmt.Errorf("failed to requeue stale commands: %w", err)
		}
		moved++
	}
}

// Commands claims commands one by one. Malformed commands are dropped.
func (q *Redis) Commands(ctx context.Context) (<-chan *Delivery, error) {
	out := make(chan *Delivery)

	go func() {
		defer close(out)

		for ctx.Err() == nil {
			raw, err := q.rdb.BRPopLPush(ctx, q.commandsKey, q.processingKey, q.pollTimeout).Result()
			if err != nil {
				if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
					continue
				}
				q.logger.Error("Failed to claim command from Redis", slog.Any("error", err))
				select {
				case <-ctx.Done():
				case <-time.After(q.pollTimeout):
				}
				continue
			}

			cmd, err := Decode([]byte(raw))
			if err != nil {
				q.logger.Error("Invalid command received", slog.Any("error", err))
				q.remove(context.WithoutCancel(ctx), raw)
				continue
			}

			d := &Delivery{
				Command: *cmd,
				ack: func() error {
					return q.rdb.LRem(context.WithoutCancel(ctx), q.processingKey, 1, raw).Err()
				},
				nack: func(requeue bool) error {
					return q.reject(context.WithoutCancel(ctx), raw, requeue)
				},
			}

			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (q *Redis) remove(ctx context.Context, raw string) {
	if err := q.rdb.LRem(ctx, q.processingKey, 1, raw).Err(); err != nil {
		q.logger.Error("Failed to drop command", slog.Any("error", err))
	}
}

func (q *Redis) reject(ctx context.Context, raw string, requeue bool) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey, 1, raw)
		if requeue {
			pipe.RPush(ctx, q.commandsKey, raw)
		}
		return nil
	})
	return err
}
