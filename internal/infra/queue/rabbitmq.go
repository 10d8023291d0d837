package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"kc-checkin-bot/internal/domain"
	"kc-checkin-bot/internal/infra/metrics"
)

// RabbitMirrorQueue реализует очередь заданий зеркалирования поверх AMQP.
type RabbitMirrorQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	consumeOnce sync.Once
	deliveries  <-chan amqp.Delivery
	consumeErr  error
}

// NewRabbitMirrorQueue подключается к RabbitMQ и объявляет устойчивую очередь.
func NewRabbitMirrorQueue(amqpURL, queue string) (*RabbitMirrorQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitMirrorQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задание в очередь.
func (q *RabbitMirrorQueue) Enqueue(ctx context.Context, job domain.MirrorJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задание из очереди.
func (q *RabbitMirrorQueue) Pop(ctx context.Context) (domain.MirrorJob, error) {
	q.consumeOnce.Do(func() {
		q.deliveries, q.consumeErr = q.ch.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	})
	if q.consumeErr != nil {
		return domain.MirrorJob{}, fmt.Errorf("consume queue: %w", q.consumeErr)
	}
	for {
		select {
		case <-ctx.Done():
			return domain.MirrorJob{}, ctx.Err()
		case msg, ok := <-q.deliveries:
			if !ok {
				return domain.MirrorJob{}, errors.New("amqp queue: канал доставки закрыт")
			}
			var job domain.MirrorJob
			if err := json.Unmarshal(msg.Body, &job); err != nil {
				// Нечитаемое сообщение отбрасываем без повторной доставки.
				_ = msg.Nack(false, false)
				continue
			}
			if err := msg.Ack(false); err != nil {
				return domain.MirrorJob{}, fmt.Errorf("ack job: %w", err)
			}
			return job, nil
		}
	}
}

// Close освобождает канал и соединение.
func (q *RabbitMirrorQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
