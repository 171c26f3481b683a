package model

import "time"

const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxDone       = "done"
	OutboxFailed     = "failed"
)

// Outbox 事务外发盒：与业务写入同事务落地，由 relay 异步投递
type Outbox struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)"`
	EventType     string     `gorm:"type:varchar(64);not null"`
	AggregateKind string     `gorm:"type:varchar(16);not null"`
	AggregateID   string     `gorm:"type:varchar(36);index:idx_outbox_aggregate"`
	Payload       string     `gorm:"type:text;not null"`
	Status        string     `gorm:"type:varchar(16);index:idx_outbox_status_created,priority:1;not null"` // pending, processing, done, failed
	Attempts      int        `gorm:"not null;default:0"`
	LastError     string     `gorm:"type:text"`
	CreatedAt     time.Time  `gorm:"index:idx_outbox_status_created,priority:2"`
	ClaimedAt     *time.Time
	ProcessedAt   *time.Time
}

func (Outbox) TableName() string { return "outbox" }

// All 需要迁移的全部模型
func All() []interface{} {
	return []interface{}{&Post{}, &Track{}, &Reaction{}, &Outbox{}}
}
