package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/vibeup/internal/metrics"
	"github.com/d60-Lab/vibeup/internal/repository"
	"github.com/d60-Lab/vibeup/internal/vibe"
	"github.com/d60-Lab/vibeup/pkg/logger"
)

// ReactionResult 提交后的实体快照
type ReactionResult struct {
	Entity vibe.Entity `json:"entity"`
	Tier   vibe.Tier   `json:"tier"`
}

// ReactionBreakdown 按标签统计的反应分布
type ReactionBreakdown struct {
	Entity vibe.EntityRef          `json:"entity"`
	Counts vibe.Counts             `json:"counts"`
	Score  int                     `json:"vibe_score"`
	Tier   vibe.Tier               `json:"tier"`
	Labels []repository.LabelCount `json:"labels"`
}

// ReactionService 反应记录；userID 来自会话，总是显式传入
type ReactionService interface {
	React(ctx context.Context, userID string, ref vibe.EntityRef, polarity vibe.Polarity, label string) (ReactionResult, error)
	Breakdown(ctx context.Context, ref vibe.EntityRef) (ReactionBreakdown, error)
}

type reactionService struct {
	engine    *vibe.Engine
	catalog   *Catalog
	reactions repository.ReactionRepository
	sync      *BoardSync
}

func NewReactionService(engine *vibe.Engine, catalog *Catalog, reactions repository.ReactionRepository, bs *BoardSync) ReactionService {
	return &reactionService{engine: engine, catalog: catalog, reactions: reactions, sync: bs}
}

func (s *reactionService) React(ctx context.Context, userID string, ref vibe.EntityRef, polarity vibe.Polarity, label string) (ReactionResult, error) {
	start := time.Now()
	if !ref.Kind.Valid() {
		return ReactionResult{}, fmt.Errorf("%w: unknown entity kind %q", vibe.ErrInvalidInput, ref.Kind)
	}

	current, _, err := s.catalog.Load(ctx, ref)
	if err != nil {
		s.observe(ref, polarity, err, start)
		return ReactionResult{}, err
	}
	updated, err := s.engine.RecordReaction(ctx, current, userID, polarity, label)
	s.observe(ref, polarity, err, start)
	if err != nil {
		return ReactionResult{}, err
	}

	logger.Info("reaction recorded",
		zap.String("user_id", userID),
		zap.String("kind", string(ref.Kind)),
		zap.String("entity_id", ref.ID),
		zap.String("polarity", string(polarity)),
		zap.Int("vibe_score", updated.VibeScore))
	s.sync.EnqueueUpdate(ref)
	return ReactionResult{Entity: updated, Tier: updated.Tier()}, nil
}

func (s *reactionService) Breakdown(ctx context.Context, ref vibe.EntityRef) (ReactionBreakdown, error) {
	entity, _, err := s.catalog.Load(ctx, ref)
	if err != nil {
		return ReactionBreakdown{}, err
	}
	labels, err := s.reactions.Breakdown(ctx, ref.ID)
	if err != nil {
		return ReactionBreakdown{}, fmt.Errorf("%w: %w", vibe.ErrStorageUnavailable, err)
	}
	if labels == nil {
		labels = []repository.LabelCount{}
	}
	return ReactionBreakdown{
		Entity: ref,
		Counts: entity.Counts,
		Score:  entity.VibeScore,
		Tier:   entity.Tier(),
		Labels: labels,
	}, nil
}

func (s *reactionService) observe(ref vibe.EntityRef, polarity vibe.Polarity, err error, start time.Time) {
	result := reactionResult(err)
	metrics.ReactionsTotal.WithLabelValues(string(ref.Kind), string(polarity), result).Inc()
	metrics.ReactionDuration.WithLabelValues(string(ref.Kind)).Observe(time.Since(start).Seconds())
	if result == "unavailable" {
		logger.Warn("reaction failed", zap.String("kind", string(ref.Kind)), zap.String("entity_id", ref.ID), zap.Error(err))
	}
}

func reactionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, vibe.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, vibe.ErrDuplicateReaction):
		return "duplicate"
	case errors.Is(err, vibe.ErrEntityNotFound):
		return "not_found"
	default:
		return "unavailable"
	}
}
