package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/vibeup/internal/events"
	"github.com/d60-Lab/vibeup/internal/model"
)

type OutboxRepository interface {
	// Claim 领取一批 pending 事件并置为 processing
	Claim(ctx context.Context, limit int, now time.Time) ([]model.Outbox, error)
	// Requeue 把 claimed_at 早于 cutoff 仍在 processing 的事件退回 pending（进程崩溃后残留）
	Requeue(ctx context.Context, cutoff time.Time) (int64, error)
	MarkDone(ctx context.Context, id string, at time.Time) error
	// MarkRetry 退回 pending；attempts 达到 maxAttempts 时置为 failed
	MarkRetry(ctx context.Context, id string, attempts, maxAttempts int, cause error) error
	CountByStatus(ctx context.Context, status string) (int64, error)
}

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository { return &outboxRepository{db: db} }

func (r *outboxRepository) Claim(ctx context.Context, limit int, now time.Time) ([]model.Outbox, error) {
	var batch []model.Outbox
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Raw(`
				SELECT * FROM outbox
				WHERE status = ?
				ORDER BY created_at
				LIMIT ?
				FOR UPDATE SKIP LOCKED
			`, model.OutboxPending, limit).Scan(&batch).Error; err != nil {
				return err
			}
		} else {
			// sqlite 单连接，事务本身即互斥
			if err := tx.Where("status = ?", model.OutboxPending).
				Order("created_at").Limit(limit).
				Find(&batch).Error; err != nil {
				return err
			}
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i, b := range batch {
			ids[i] = b.ID
		}
		return tx.Model(&model.Outbox{}).Where("id IN ?", ids).
			Updates(map[string]any{"status": model.OutboxProcessing, "claimed_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	for i := range batch {
		batch[i].Status = model.OutboxProcessing
		batch[i].ClaimedAt = &now
	}
	return batch, nil
}

func (r *outboxRepository) Requeue(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("status = ? AND claimed_at < ?", model.OutboxProcessing, cutoff).
		Update("status", model.OutboxPending)
	return res.RowsAffected, res.Error
}

func (r *outboxRepository) MarkDone(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxDone, "processed_at": at, "last_error": ""}).Error
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id string, attempts, maxAttempts int, cause error) error {
	status := model.OutboxPending
	if attempts >= maxAttempts {
		status = model.OutboxFailed
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "attempts": attempts, "last_error": msg}).Error
}

func (r *outboxRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Outbox{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

// OutboxFromEvent 事件 -> outbox 行（pending）
func OutboxFromEvent(evt events.Event) *model.Outbox {
	return &model.Outbox{
		ID:            evt.ID,
		EventType:     evt.Type,
		AggregateKind: evt.AggregateKind,
		AggregateID:   evt.AggregateID,
		Payload:       string(evt.Payload),
		Status:        model.OutboxPending,
		CreatedAt:     evt.OccurredAt,
	}
}

// EventFromOutbox outbox 行 -> 事件
func EventFromOutbox(o model.Outbox) events.Event {
	return events.Event{
		ID:            o.ID,
		Type:          o.EventType,
		AggregateKind: o.AggregateKind,
		AggregateID:   o.AggregateID,
		OccurredAt:    o.CreatedAt,
		Payload:       []byte(o.Payload),
	}
}
