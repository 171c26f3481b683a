package model

import (
	"time"

	"github.com/d60-Lab/vibeup/internal/vibe"
)

// Post 动态：文字/图片，可附带一首曲目
type Post struct {
	ID                string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AuthorID          string    `json:"author_id" gorm:"type:varchar(64);index:idx_post_author;not null"`
	Content           string    `json:"content" gorm:"type:text;not null"`
	ImageURL          string    `json:"image_url,omitempty" gorm:"type:varchar(512)"`
	TrackID           string    `json:"track_id,omitempty" gorm:"type:varchar(36);index"`
	PositiveReactions int64     `json:"positive_reactions" gorm:"not null;default:0"`
	NegativeReactions int64     `json:"negative_reactions" gorm:"not null;default:0"`
	VibeScore         int       `json:"vibe_score" gorm:"not null;default:50;index:idx_post_rank,priority:1"`
	CreatedAt         time.Time `json:"created_at" gorm:"index:idx_post_rank,priority:2"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Post) TableName() string { return "posts" }

// Entity 投影为引擎使用的实体快照
func (p *Post) Entity() vibe.Entity {
	return vibe.Entity{
		Ref:       vibe.EntityRef{Kind: vibe.KindPost, ID: p.ID},
		Counts:    vibe.Counts{Positive: p.PositiveReactions, Negative: p.NegativeReactions},
		VibeScore: p.VibeScore,
		CreatedAt: p.CreatedAt,
	}
}

// Apply 用引擎返回的快照覆盖计数与分数
func (p *Post) Apply(e vibe.Entity) {
	p.PositiveReactions = e.Counts.Positive
	p.NegativeReactions = e.Counts.Negative
	p.VibeScore = e.VibeScore
}
