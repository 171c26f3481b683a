package model

import (
	"time"

	"github.com/d60-Lab/vibeup/internal/vibe"
)

// Reaction 用户对 post/track 的一次反应
type Reaction struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	UserID     string `gorm:"type:varchar(64);not null;uniqueIndex:ux_reaction_user_entity,priority:1"`
	EntityKind string `gorm:"type:varchar(16);not null;index:idx_reaction_entity,priority:1"`
	EntityID   string `gorm:"type:varchar(36);not null;uniqueIndex:ux_reaction_user_entity,priority:2;index:idx_reaction_entity,priority:2"`
	// 复合唯一键，每个用户对每个实体只能反应一次
	// ux_reaction_user_entity = (user_id, entity_id)
	Polarity  string `gorm:"type:varchar(16);not null"`
	Label     string `gorm:"type:varchar(16);not null"`
	CreatedAt time.Time
}

func (Reaction) TableName() string { return "reactions" }

func NewReaction(r vibe.Reaction) *Reaction {
	return &Reaction{
		ID:         r.ID,
		UserID:     r.UserID,
		EntityKind: string(r.Entity.Kind),
		EntityID:   r.Entity.ID,
		Polarity:   string(r.Polarity),
		Label:      r.Label,
		CreatedAt:  r.CreatedAt,
	}
}

func (r *Reaction) Domain() vibe.Reaction {
	return vibe.Reaction{
		ID:        r.ID,
		UserID:    r.UserID,
		Entity:    vibe.EntityRef{Kind: vibe.Kind(r.EntityKind), ID: r.EntityID},
		Polarity:  vibe.Polarity(r.Polarity),
		Label:     r.Label,
		CreatedAt: r.CreatedAt,
	}
}
