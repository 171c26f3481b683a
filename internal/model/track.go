package model

import (
	"time"

	"github.com/d60-Lab/vibeup/internal/vibe"
)

// Track 市场中的曲目；价格仅用于展示
type Track struct {
	ID                string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ArtistID          string    `json:"artist_id" gorm:"type:varchar(64);index:idx_track_artist;not null"`
	Title             string    `json:"title" gorm:"type:varchar(200);not null"`
	Description       string    `json:"description,omitempty" gorm:"type:text"`
	AudioURL          string    `json:"audio_url" gorm:"type:varchar(512);not null"`
	CoverImageURL     string    `json:"cover_image_url,omitempty" gorm:"type:varchar(512)"`
	Price             float64   `json:"price" gorm:"type:decimal(10,2);not null;default:0"`
	Currency          string    `json:"currency" gorm:"type:varchar(3);not null;default:'USD'"`
	TotalSales        int64     `json:"total_sales" gorm:"not null;default:0"`
	PositiveReactions int64     `json:"positive_reactions" gorm:"not null;default:0"`
	NegativeReactions int64     `json:"negative_reactions" gorm:"not null;default:0"`
	VibeScore         int       `json:"vibe_score" gorm:"not null;default:50;index:idx_track_rank,priority:1"`
	CreatedAt         time.Time `json:"created_at" gorm:"index:idx_track_rank,priority:2"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Track) TableName() string { return "tracks" }

func (t *Track) Entity() vibe.Entity {
	return vibe.Entity{
		Ref:       vibe.EntityRef{Kind: vibe.KindTrack, ID: t.ID},
		Counts:    vibe.Counts{Positive: t.PositiveReactions, Negative: t.NegativeReactions},
		VibeScore: t.VibeScore,
		CreatedAt: t.CreatedAt,
	}
}

func (t *Track) Apply(e vibe.Entity) {
	t.PositiveReactions = e.Counts.Positive
	t.NegativeReactions = e.Counts.Negative
	t.VibeScore = e.VibeScore
}
