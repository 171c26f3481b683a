package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher 只写日志，本地开发时代替消息总线
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.log.Info("event published",
		zap.String("id", evt.ID),
		zap.String("type", evt.Type),
		zap.String("aggregate_kind", evt.AggregateKind),
		zap.String("aggregate_id", evt.AggregateID),
		zap.Time("occurred_at", evt.OccurredAt),
		zap.ByteString("payload", evt.Payload),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
