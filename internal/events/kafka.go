package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// KafkaPublisher 以聚合 id 为 key 写入同一 topic，同一实体的事件保持分区内有序
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher brokers 以逗号分隔
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	addrs := make([]string, 0)
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	w := &kgo.Writer{
		Addr:         kgo.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kgo.Hash{},
		RequiredAcks: kgo.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{w: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kgo.Message{
		Key:   []byte(evt.AggregateID),
		Value: value,
		Time:  evt.OccurredAt,
		Headers: []kgo.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
			{Key: "event-id", Value: []byte(evt.ID)},
		},
	})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
