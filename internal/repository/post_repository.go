package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/vibeup/internal/model"
	"github.com/d60-Lab/vibeup/internal/vibe"
)

// rankOrder 分数降序，同分按创建先后
const rankOrder = "vibe_score DESC, created_at ASC, id ASC"

var ErrNotFound = errors.New("record not found")

type PostRepository interface {
	// CreateWithOutbox 同一事务内写 post 与 outbox 事件
	CreateWithOutbox(ctx context.Context, post *model.Post, out *model.Outbox) error
	GetByID(ctx context.Context, id string) (*model.Post, error)
	ListRanked(ctx context.Context, offset, limit int) ([]*model.Post, error)
	// FindByIDs 按 ids 的顺序返回，缺失的 id 被跳过
	FindByIDs(ctx context.Context, ids []string) ([]*model.Post, error)
	// RankEntries 全量排名输入，用于重建排行榜
	RankEntries(ctx context.Context) ([]vibe.Entity, error)
	Count(ctx context.Context) (int64, error)
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) CreateWithOutbox(ctx context.Context, post *model.Post, out *model.Outbox) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		return tx.Create(out).Error
	})
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var p model.Post
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) ListRanked(ctx context.Context, offset, limit int) ([]*model.Post, error) {
	var res []*model.Post
	err := r.db.WithContext(ctx).Order(rankOrder).Offset(offset).Limit(limit).Find(&res).Error
	return res, err
}

func (r *postRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Post, error) {
	if len(ids) == 0 {
		return []*model.Post{}, nil
	}
	var rows []*model.Post
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Post, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	res := make([]*model.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			res = append(res, p)
		}
	}
	return res, nil
}

func (r *postRepository) RankEntries(ctx context.Context) ([]vibe.Entity, error) {
	var rows []*model.Post
	err := r.db.WithContext(ctx).
		Select("id", "positive_reactions", "negative_reactions", "vibe_score", "created_at").
		Order(rankOrder).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]vibe.Entity, len(rows))
	for i, p := range rows {
		out[i] = p.Entity()
	}
	return out, nil
}

func (r *postRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Post{}).Count(&n).Error
	return n, err
}
