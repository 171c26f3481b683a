package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/vibeup/internal/events"
	"github.com/d60-Lab/vibeup/internal/model"
	"github.com/d60-Lab/vibeup/internal/vibe"
)

// reactionStore 基于 gorm 的 vibe.Store：
// reactions 上的 (user_id, entity_id) 唯一索引兜底重复反应，
// 计数更新使用 CAS（WHERE 带上期望的旧计数）。
type reactionStore struct {
	db   *gorm.DB
	inTx bool
}

// NewReactionStore 事务内的 store 同时实现 vibe.Journal，反应事件与计数一起落 outbox
func NewReactionStore(db *gorm.DB) vibe.Store { return &reactionStore{db: db} }

func (s *reactionStore) Atomically(ctx context.Context, fn func(tx vibe.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&reactionStore{db: tx, inTx: true})
	})
}

func (s *reactionStore) FindReaction(ctx context.Context, userID, entityID string) (*vibe.Reaction, error) {
	var row model.Reaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND entity_id = ?", userID, entityID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == "" {
		return nil, nil
	}
	r := row.Domain()
	return &r, nil
}

func (s *reactionStore) InsertReaction(ctx context.Context, r vibe.Reaction) error {
	if err := s.db.WithContext(ctx).Create(model.NewReaction(r)).Error; err != nil {
		if isUniqueViolation(err) {
			return vibe.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *reactionStore) UpdateEntityCounts(ctx context.Context, ref vibe.EntityRef, expected, next vibe.Counts) error {
	table, err := entityTable(ref.Kind)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Table(table).
		Where("id = ? AND positive_reactions = ? AND negative_reactions = ?", ref.ID, expected.Positive, expected.Negative).
		Updates(map[string]any{
			"positive_reactions": next.Positive,
			"negative_reactions": next.Negative,
			"vibe_score":         next.Score(),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// 0 行：要么实体不存在，要么计数已被别人改过
	var n int64
	if err := s.db.WithContext(ctx).Table(table).Where("id = ?", ref.ID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return vibe.ErrEntityNotFound
	}
	return vibe.ErrConflict
}

func (s *reactionStore) LoadEntity(ctx context.Context, ref vibe.EntityRef) (vibe.Entity, error) {
	q := s.db.WithContext(ctx)
	if s.inTx {
		// sqlite 会忽略行锁子句
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	switch ref.Kind {
	case vibe.KindPost:
		var p model.Post
		if err := q.First(&p, "id = ?", ref.ID).Error; err != nil {
			return vibe.Entity{}, notFound(err)
		}
		return p.Entity(), nil
	case vibe.KindTrack:
		var t model.Track
		if err := q.First(&t, "id = ?", ref.ID).Error; err != nil {
			return vibe.Entity{}, notFound(err)
		}
		return t.Entity(), nil
	default:
		return vibe.Entity{}, fmt.Errorf("%w: unknown entity kind %q", vibe.ErrInvalidInput, ref.Kind)
	}
}

// AppendReaction 实现 vibe.Journal
func (s *reactionStore) AppendReaction(ctx context.Context, r vibe.Reaction, updated vibe.Entity) error {
	evt, err := events.New(events.TypeReactionRecorded, updated.Ref, events.ReactionRecorded{Reaction: r, Entity: updated}, r.CreatedAt)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(OutboxFromEvent(evt)).Error
}

func entityTable(k vibe.Kind) (string, error) {
	switch k {
	case vibe.KindPost:
		return model.Post{}.TableName(), nil
	case vibe.KindTrack:
		return model.Track{}.TableName(), nil
	}
	return "", fmt.Errorf("%w: unknown entity kind %q", vibe.ErrInvalidInput, k)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return vibe.ErrEntityNotFound
	}
	return err
}

// isUniqueViolation TranslateError 未覆盖的驱动版本按错误文本兜底
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
