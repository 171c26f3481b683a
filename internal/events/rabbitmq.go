package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher 发到默认 exchange 下的持久化队列
type RabbitMQPublisher struct {
	conn  *amqp.Connection
	queue string

	mu sync.Mutex
	ch amqpChannel
}

func NewRabbitMQPublisher(url, queue string) (*RabbitMQPublisher, error) {
	if queue == "" {
		queue = "vibeup.events"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &RabbitMQPublisher{conn: conn, queue: queue, ch: ch}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Type:         evt.Type,
		Timestamp:    evt.OccurredAt,
		Body:         body,
	})
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cErr := p.conn.Close(); err == nil {
			err = cErr
		}
	}
	return err
}
