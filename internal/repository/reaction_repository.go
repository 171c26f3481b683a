package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/vibeup/internal/model"
)

// LabelCount 单个标签的反应数
type LabelCount struct {
	Polarity string `json:"polarity"`
	Label    string `json:"label"`
	Count    int64  `json:"count"`
}

type ReactionRepository interface {
	Breakdown(ctx context.Context, entityID string) ([]LabelCount, error)
	ListByEntity(ctx context.Context, entityID string, offset, limit int) ([]*model.Reaction, error)
}

type reactionRepository struct {
	db *gorm.DB
}

func NewReactionRepository(db *gorm.DB) ReactionRepository { return &reactionRepository{db: db} }

func (r *reactionRepository) Breakdown(ctx context.Context, entityID string) ([]LabelCount, error) {
	var res []LabelCount
	err := r.db.WithContext(ctx).
		Model(&model.Reaction{}).
		Select("polarity, label, COUNT(*) AS count").
		Where("entity_id = ?", entityID).
		Group("polarity, label").
		Order("polarity DESC, label ASC").
		Scan(&res).Error
	return res, err
}

func (r *reactionRepository) ListByEntity(ctx context.Context, entityID string, offset, limit int) ([]*model.Reaction, error) {
	var res []*model.Reaction
	err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at ASC, id ASC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}
