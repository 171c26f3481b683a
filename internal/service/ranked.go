package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/vibeup/internal/metrics"
	"github.com/d60-Lab/vibeup/internal/ranking"
	"github.com/d60-Lab/vibeup/internal/vibe"
	"github.com/d60-Lab/vibeup/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	SourceBoard    = "board"
	SourceDatabase = "database"
)

type rankedStore[T any] interface {
	ListRanked(ctx context.Context, offset, limit int) ([]*T, error)
	FindByIDs(ctx context.Context, ids []string) ([]*T, error)
	Count(ctx context.Context) (int64, error)
}

type rankedPage[T any] struct {
	items  []*T
	total  int64
	source string
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// readRanked 排行榜就绪时从 Redis 读 id 与快照，否则回源数据库并触发重建
func readRanked[T any](ctx context.Context, board *ranking.Board, bs *BoardSync, kind vibe.Kind,
	repo rankedStore[T], idOf func(*T) string, page, pageSize int) (rankedPage[T], error) {
	offset := (page - 1) * pageSize

	if board != nil {
		ready, err := board.Ready(ctx, kind)
		if err != nil {
			logger.Warn("board unavailable, reading ranking from database", zap.String("kind", string(kind)), zap.Error(err))
		}
		if err == nil && ready {
			res, err := readFromBoard(ctx, board, kind, repo, idOf, offset, pageSize)
			if err == nil {
				metrics.BoardReadsTotal.WithLabelValues(string(kind), SourceBoard).Inc()
				return res, nil
			}
			logger.Warn("board read failed, reading ranking from database", zap.String("kind", string(kind)), zap.Error(err))
		}
		if err == nil && !ready {
			bs.EnqueueRebuild(kind)
		}
	}

	items, err := repo.ListRanked(ctx, offset, pageSize)
	if err != nil {
		return rankedPage[T]{}, fmt.Errorf("%w: %w", vibe.ErrStorageUnavailable, err)
	}
	total, err := repo.Count(ctx)
	if err != nil {
		return rankedPage[T]{}, fmt.Errorf("%w: %w", vibe.ErrStorageUnavailable, err)
	}
	metrics.BoardReadsTotal.WithLabelValues(string(kind), SourceDatabase).Inc()
	return rankedPage[T]{items: items, total: total, source: SourceDatabase}, nil
}

func readFromBoard[T any](ctx context.Context, board *ranking.Board, kind vibe.Kind,
	repo rankedStore[T], idOf func(*T) string, offset, limit int) (rankedPage[T], error) {
	ids, err := board.Range(ctx, kind, offset, limit)
	if err != nil {
		return rankedPage[T]{}, err
	}
	total, err := board.Len(ctx, kind)
	if err != nil {
		return rankedPage[T]{}, err
	}
	payloads, err := board.Payloads(ctx, kind, ids)
	if err != nil {
		return rankedPage[T]{}, err
	}

	found := make(map[string]*T, len(ids))
	missing := make([]string, 0)
	for _, id := range ids {
		raw, ok := payloads[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		item := new(T)
		if err := json.Unmarshal(raw, item); err != nil {
			missing = append(missing, id)
			continue
		}
		found[id] = item
	}

	if len(missing) > 0 {
		rows, err := repo.FindByIDs(ctx, missing)
		if err != nil {
			return rankedPage[T]{}, err
		}
		fill := make(map[string][]byte, len(rows))
		for _, row := range rows {
			found[idOf(row)] = row
			if payload, err := json.Marshal(row); err == nil {
				fill[idOf(row)] = payload
			}
		}
		_ = board.CachePayloads(ctx, kind, fill)
	}

	items := make([]*T, 0, len(ids))
	for _, id := range ids {
		if item, ok := found[id]; ok {
			items = append(items, item)
		}
	}
	return rankedPage[T]{items: items, total: total, source: SourceBoard}, nil
}
