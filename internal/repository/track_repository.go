package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/vibeup/internal/model"
	"github.com/d60-Lab/vibeup/internal/vibe"
)

type TrackRepository interface {
	CreateWithOutbox(ctx context.Context, track *model.Track, out *model.Outbox) error
	GetByID(ctx context.Context, id string) (*model.Track, error)
	ListRanked(ctx context.Context, offset, limit int) ([]*model.Track, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.Track, error)
	RankEntries(ctx context.Context) ([]vibe.Entity, error)
	Count(ctx context.Context) (int64, error)
}

type trackRepository struct {
	db *gorm.DB
}

func NewTrackRepository(db *gorm.DB) TrackRepository { return &trackRepository{db: db} }

func (r *trackRepository) CreateWithOutbox(ctx context.Context, track *model.Track, out *model.Outbox) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(track).Error; err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		return tx.Create(out).Error
	})
}

func (r *trackRepository) GetByID(ctx context.Context, id string) (*model.Track, error) {
	var t model.Track
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *trackRepository) ListRanked(ctx context.Context, offset, limit int) ([]*model.Track, error) {
	var res []*model.Track
	err := r.db.WithContext(ctx).Order(rankOrder).Offset(offset).Limit(limit).Find(&res).Error
	return res, err
}

func (r *trackRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Track, error) {
	if len(ids) == 0 {
		return []*model.Track{}, nil
	}
	var rows []*model.Track
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Track, len(rows))
	for _, t := range rows {
		byID[t.ID] = t
	}
	res := make([]*model.Track, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			res = append(res, t)
		}
	}
	return res, nil
}

func (r *trackRepository) RankEntries(ctx context.Context) ([]vibe.Entity, error) {
	var rows []*model.Track
	err := r.db.WithContext(ctx).
		Select("id", "positive_reactions", "negative_reactions", "vibe_score", "created_at").
		Order(rankOrder).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]vibe.Entity, len(rows))
	for i, t := range rows {
		out[i] = t.Entity()
	}
	return out, nil
}

func (r *trackRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Track{}).Count(&n).Error
	return n, err
}
