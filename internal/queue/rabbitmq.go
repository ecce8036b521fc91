package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/cuongbtq/jobscheduler/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPClient is the part of rabbitmq.Client used by the queue
type AMQPClient interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
	ConsumerCount() (int, error)
	Consume(consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
}

// RabbitMQ sends commands through a RabbitMQ exchange.
// The scheduler is considered alive while it consumes the command queue.
type RabbitMQ struct {
	client        AMQPClient
	logger        *slog.Logger
	consumerTag   string
	prefetch      int
	retryInterval time.Duration
}

// RabbitMQConfig holds the consumer settings of the queue
type RabbitMQConfig struct {
	Client        AMQPClient
	Logger        *slog.Logger
	ConsumerTag   string
	PrefetchCount int
	// RetryInterval separates the attempts to consume again once the delivery channel closed
	RetryInterval time.Duration
}

// NewRabbitMQ creates a RabbitMQ backed queue
func NewRabbitMQ(cfg *RabbitMQConfig) *RabbitMQ {
	q := &RabbitMQ{
		client:        cfg.Client,
		logger:        cfg.Logger,
		consumerTag:   cfg.ConsumerTag,
		prefetch:      cfg.PrefetchCount,
		retryInterval: cfg.RetryInterval,
	}
	if q.retryInterval <= 0 {
		q.retryInterval = 5 * time.Second
	}
	return q
}

func (q *RabbitMQ) Ping(ctx context.Context) (string, error) {
	consumers, err := q.client.ConsumerCount()
	if err != nil {
		return "", jobs.NewQueueTransportError("ping", err)
	}
	if consumers == 0 {
		return NotRespondingMessage, nil
	}
	return "", nil
}

func (q *RabbitMQ) StartJob(ctx context.Context, job *jobs.Job) error {
	if err := q.publish(ctx, NewStartCommand(job)); err != nil {
		return jobs.NewQueueTransportError("start", err)
	}
	return nil
}

func (q *RabbitMQ) RefreshJob(ctx context.Context, job *jobs.Job, data jobs.RefreshData) error {
	if err := q.publish(ctx, NewRefreshCommand(job, data)); err != nil {
		return jobs.NewQueueTransportError("refresh", err)
	}
	return nil
}

func (q *RabbitMQ) publish(ctx context.Context, cmd Command) error {
	body, err := Encode(cmd)
	if err != nil {
		return err
	}

	return q.client.Publish(ctx, rabbitmq.Message{
		ID:          cmd.ID,
		Type:        cmd.Type,
		ContentType: ContentType,
		Body:        body,
	})
}

// Commands consumes the command queue. Malformed messages are rejected without requeue.
// When the broker connection drops, consuming resumes once the client reconnected.
func (q *RabbitMQ) Commands(ctx context.Context) (<-chan *Delivery, error) {
	msgs, err := q.client.Consume(q.consumerTag, q.prefetch)
	if err != nil {
		return nil, jobs.NewQueueTransportError("consume", err)
	}

	out := make(chan *Delivery)
	go func() {
		defer close(out)

		for {
			if !q.forward(ctx, msgs, out) {
				return
			}

			q.logger.Warn("RabbitMQ delivery channel closed, consuming again",
				slog.Duration("retry_interval", q.retryInterval),
			)
			msgs = q.consumeAgain(ctx)
			if msgs == nil {
				return
			}
		}
	}()

	return out, nil
}

// forward hands the deliveries to out. It returns false when ctx is done
// and true when the delivery channel closed.
func (q *RabbitMQ) forward(ctx context.Context, msgs <-chan amqp.Delivery, out chan<- *Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-msgs:
			if !ok {
				return true
			}

			cmd, err := Decode(msg.Body)
			if err != nil {
				q.logger.Error("Invalid command received",
					slog.String("message_id", msg.MessageId),
					slog.Any("error", err),
				)
				if nackErr := msg.Nack(false, false); nackErr != nil {
					q.logger.Error("Failed to nack message", slog.Any("error", nackErr))
				}
				continue
			}

			d := &Delivery{
				Command: *cmd,
				ack:     func() error { return msg.Ack(false) },
				nack:    func(requeue bool) error { return msg.Nack(false, requeue) },
			}

			select {
			case out <- d:
			case <-ctx.Done():
				if nackErr := msg.Nack(false, true); nackErr != nil {
					q.logger.Error("Failed to requeue message", slog.Any("error", nackErr))
				}
				return false
			}
		}
	}
}

// consumeAgain retries Consume until it succeeds; nil means ctx is done
func (q *RabbitMQ) consumeAgain(ctx context.Context) <-chan amqp.Delivery {
	ticker := time.NewTicker(q.retryInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		msgs, err := q.client.Consume(q.consumerTag, q.prefetch)
		if err == nil {
			q.logger.Info("Consuming RabbitMQ commands again", slog.Int("attempt", attempt))
			return msgs
		}
		q.logger.Warn("Failed to consume RabbitMQ commands",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
}
