package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const attemptsHeader = "x-attempts"

// RabbitQueue implements the segment job queue on RabbitMQ. Delayed
// delivery uses a wait queue with per-message TTL that dead-letters into
// the work queue; exhausted jobs land on the dead queue for inspection.
type RabbitQueue struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	queueName string
	opts      Options
	logger    *slog.Logger

	mu sync.Mutex
}

func NewRabbitQueue(url, queueName string, opts Options, logger *slog.Logger) (*RabbitQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	q := &RabbitQueue{
		conn:      conn,
		ch:        ch,
		queueName: queueName,
		opts:      opts.withDefaults(),
		logger:    logger,
	}

	if err := q.declare(); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return q, nil
}

func (q *RabbitQueue) declare() error {
	if _, err := q.ch.QueueDeclare(
		q.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare work queue: %w", err)
	}

	// Wait queue: messages expire per their TTL and dead-letter back into
	// the work queue on the default exchange.
	if _, err := q.ch.QueueDeclare(
		q.waitQueue(),
		true, false, false, false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": q.queueName,
		},
	); err != nil {
		return fmt.Errorf("failed to declare wait queue: %w", err)
	}

	if _, err := q.ch.QueueDeclare(
		q.deadQueue(),
		true, false, false, false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare dead queue: %w", err)
	}

	return nil
}

func (q *RabbitQueue) waitQueue() string {
	return q.queueName + ".wait"
}

func (q *RabbitQueue) deadQueue() string {
	return q.queueName + ".dead"
}

func (q *RabbitQueue) Publish(ctx context.Context, job SegmentJob, delay time.Duration) error {
	return q.publish(ctx, job, delay, 1)
}

func (q *RabbitQueue) publish(ctx context.Context, job SegmentJob, delay time.Duration, attempt int) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal segment job: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Headers:      amqp.Table{attemptsHeader: int32(attempt)},
	}

	routingKey := q.queueName
	if delay > 0 {
		routingKey = q.waitQueue()
		msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ch.PublishWithContext(ctx, "", routingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish segment job: %w", err)
	}
	return nil
}

func (q *RabbitQueue) Start(ctx context.Context) error {
	consumeCh, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer consumeCh.Close()

	// Bound unacked deliveries to the worker pool size.
	if err := consumeCh.Qos(q.opts.Workers, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := consumeCh.Consume(
		q.queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < q.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						return
					}
					q.handleDelivery(ctx, d)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (q *RabbitQueue) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var job SegmentJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		q.logger.Error("failed to unmarshal segment job, dropping", "error", err)
		d.Nack(false, false)
		return
	}

	err := q.opts.Handler(ctx, job)
	if err == nil {
		d.Ack(false)
		return
	}

	attempt := deliveryAttempt(d)
	if attempt < q.opts.MaxAttempts {
		q.logger.Warn("segment job failed, redelivering",
			"video_id", job.VideoID,
			"segment_index", job.SegmentIndex,
			"attempt", attempt,
			"error", err,
		)
		if pubErr := q.publish(ctx, job, q.opts.RetryDelay, attempt+1); pubErr != nil {
			// Could not schedule the retry; push the original back instead.
			q.logger.Error("failed to schedule retry, requeueing", "error", pubErr)
			d.Nack(false, true)
			return
		}
		d.Ack(false)
		return
	}

	q.logger.Error("segment job exhausted delivery attempts",
		"video_id", job.VideoID,
		"segment_index", job.SegmentIndex,
		"attempts", attempt,
		"error", err,
	)
	q.deadLetter(ctx, d.Body)
	if q.opts.OnExhausted != nil {
		q.opts.OnExhausted(ctx, job, err)
	}
	d.Ack(false)
}

func (q *RabbitQueue) deadLetter(ctx context.Context, body []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.ch.PublishWithContext(ctx, "", q.deadQueue(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		q.logger.Error("failed to publish to dead queue", "error", err)
	}
}

func deliveryAttempt(d amqp.Delivery) int {
	if d.Headers == nil {
		return 1
	}
	switch v := d.Headers[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}

func (q *RabbitQueue) Close() error {
	q.ch.Close()
	return q.conn.Close()
}
