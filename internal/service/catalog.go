package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/d60-Lab/vibeup/internal/repository"
	"github.com/d60-Lab/vibeup/internal/vibe"
)

// Catalog 按 kind 分派到 posts / tracks 仓储
type Catalog struct {
	posts  repository.PostRepository
	tracks repository.TrackRepository
}

func NewCatalog(posts repository.PostRepository, tracks repository.TrackRepository) *Catalog {
	return &Catalog{posts: posts, tracks: tracks}
}

// Load 返回实体快照及其完整行的 JSON（排行榜缓存用）
func (c *Catalog) Load(ctx context.Context, ref vibe.EntityRef) (vibe.Entity, []byte, error) {
	var (
		entity vibe.Entity
		row    any
	)
	switch ref.Kind {
	case vibe.KindPost:
		p, err := c.posts.GetByID(ctx, ref.ID)
		if err != nil {
			return vibe.Entity{}, nil, entityErr(ref, err)
		}
		entity, row = p.Entity(), p
	case vibe.KindTrack:
		t, err := c.tracks.GetByID(ctx, ref.ID)
		if err != nil {
			return vibe.Entity{}, nil, entityErr(ref, err)
		}
		entity, row = t.Entity(), t
	default:
		return vibe.Entity{}, nil, fmt.Errorf("%w: unknown entity kind %q", vibe.ErrInvalidInput, ref.Kind)
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return vibe.Entity{}, nil, err
	}
	return entity, payload, nil
}

func (c *Catalog) RankEntries(ctx context.Context, kind vibe.Kind) ([]vibe.Entity, error) {
	switch kind {
	case vibe.KindPost:
		return c.posts.RankEntries(ctx)
	case vibe.KindTrack:
		return c.tracks.RankEntries(ctx)
	}
	return nil, fmt.Errorf("%w: unknown entity kind %q", vibe.ErrInvalidInput, kind)
}

func entityErr(ref vibe.EntityRef, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", vibe.ErrEntityNotFound, ref.Kind, ref.ID)
	}
	return fmt.Errorf("%w: %w", vibe.ErrStorageUnavailable, err)
}
