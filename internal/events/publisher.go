package events

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/vibeup/config"
)

// NewPublisher 按 events.driver 选择实现
func NewPublisher(cfg config.EventsConfig, log *zap.Logger) (Publisher, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogPublisher(log), nil
	case "kafka":
		return NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	case "rabbitmq":
		return NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}
